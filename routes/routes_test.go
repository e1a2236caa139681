package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	bookingRepo "gigbook/database/repository/booking"
	conversationRepo "gigbook/database/repository/conversation"
	payoutRepo "gigbook/database/repository/payout"
	reviewRepo "gigbook/database/repository/review"
	"gigbook/handlers"
	"gigbook/models"
	"gigbook/services/booking"
	"gigbook/services/conversation"
	"gigbook/services/ledger"
	"gigbook/services/realtime"
	"gigbook/services/review"
	"gigbook/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	router *gin.Engine
	tokens *utils.TokenManager
	gw     *ledger.MemoryGateway
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	payouts := payoutRepo.NewMemoryPayoutAccountRepo()
	require.NoError(t, payouts.Upsert(context.Background(), &models.PayoutAccount{ProviderID: "provider-1", ConnectedAccountID: "acct_1"}))
	gw := ledger.NewMemoryGateway()
	svc := &booking.DefaultBookingService{
		Store:         bookingRepo.NewMemoryBookingRepo(),
		Ledger:        gw,
		Payouts:       payouts,
		Conversations: conversation.NewBridge(conversationRepo.NewMemoryConversationRepo(), logger),
		Reviews:       review.NewGate(reviewRepo.NewMemoryReviewRepo()),
		Deduper:       booking.NewMemoryDeduper(),
		Logger:        logger,
	}
	tokens := utils.NewTokenManager("test-secret", time.Hour, 24*time.Hour)
	monitor := utils.NewHealthMonitor(map[string]utils.Pinger{
		"store": utils.PingFunc(func(ctx context.Context) error { return nil }),
	})
	monitor.Check(context.Background())

	hb := handlers.NewHandlerBundle(
		handlers.NewBookingHandler(svc, realtime.NewBookingHub(logger)),
		handlers.NewPaymentHandler(svc),
		handlers.NewAuthHandler(tokens, utils.NewMemoryTokenRevoker()),
		monitor,
	)
	r := gin.New()
	r.Use(utils.ErrorHandler())
	RegisterRoutes(r, hb)
	return &testServer{router: r, tokens: tokens, gw: gw}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	tok, _, err := s.tokens.GenerateToken(userID, utils.TokenTypeAccess)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	out := map[string]any{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	client := s.token(t, "client-1")
	provider := s.token(t, "provider-1")

	code, created := s.do(t, http.MethodPost, "/api/bookings", client, map[string]any{
		"serviceId":         "svc-1",
		"serviceTitle":      "Logo design",
		"serviceProviderId": "provider-1",
		"hourlyRate":        50,
		"estimatedHours":    2,
	})
	require.Equal(t, http.StatusCreated, code, created)
	id := created["id"].(string)
	assert.Equal(t, 100.0, created["totalEstimate"])
	assert.ElementsMatch(t, []any{"cancelled"}, created["allowedTargets"])

	code, list := s.do(t, http.MethodGet, "/api/bookings?role=provider", provider, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, list["bookings"], 1)

	due := time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339)
	code, body := s.do(t, http.MethodPost, "/api/bookings/"+id+"/transitions", provider, map[string]any{
		"targetStatus": "pending-buyer",
		"proposal":     map[string]any{"proposedHours": 3, "proposedTotal": 150, "proposedDueDate": due},
	})
	require.Equal(t, http.StatusOK, code, body)

	code, auth := s.do(t, http.MethodPost, "/api/payments/authorize", client, map[string]any{
		"bookingId":         id,
		"totalAmount":       150,
		"currency":          "sgd",
		"serviceProviderId": "provider-1",
	})
	require.Equal(t, http.StatusOK, code, auth)
	assert.Equal(t, 15000.0, auth["amount"])
	pi := auth["paymentIntentId"].(string)

	code, body = s.do(t, http.MethodPost, "/api/bookings/"+id+"/transitions", provider, map[string]any{"targetStatus": "awaiting-review"})
	require.Equal(t, http.StatusOK, code, body)

	code, captured := s.do(t, http.MethodPost, "/api/payments/capture", client, map[string]any{"paymentIntentId": pi})
	require.Equal(t, http.StatusOK, code, captured)
	assert.Equal(t, "succeeded", captured["status"])

	code, body = s.do(t, http.MethodGet, "/api/bookings/"+id+"/reviewable", client, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["reviewable"])

	code, body = s.do(t, http.MethodGet, "/api/bookings/"+id+"/conversation", provider, nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, body["id"])

	code, stats := s.do(t, http.MethodGet, "/api/bookings/stats", client, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1.0, stats["total"])
	assert.Equal(t, 1.0, stats["completed"])
}

func TestErrorResponses(t *testing.T) {
	s := newTestServer(t)
	client := s.token(t, "client-1")
	provider := s.token(t, "provider-1")

	code, body := s.do(t, http.MethodGet, "/api/bookings", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "AUTH_REQUIRED", body["code"])

	_, created := s.do(t, http.MethodPost, "/api/bookings", client, map[string]any{
		"serviceId": "svc-1", "serviceProviderId": "provider-1", "hourlyRate": 20,
	})
	id := created["id"].(string)

	code, body = s.do(t, http.MethodGet, "/api/bookings/"+id, s.token(t, "stranger"), nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "ACCESS_DENIED", body["code"])

	code, body = s.do(t, http.MethodPost, "/api/bookings/"+id+"/transitions", client, map[string]any{"targetStatus": "completed"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "INVALID_TRANSITION", body["code"])
	assert.Equal(t, id, body["bookingId"])
	assert.Equal(t, "pending->completed", body["transition"])

	code, body = s.do(t, http.MethodPost, "/api/bookings/"+id+"/transitions", client, map[string]any{"targetStatus": "declined"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "ACCESS_DENIED", body["code"])

	code, body = s.do(t, http.MethodPost, "/api/bookings/"+id+"/transitions", provider, map[string]any{})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])

	code, body = s.do(t, http.MethodGet, "/api/bookings/missing", client, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", body["code"])

	code, _ = s.do(t, http.MethodGet, "/api/bookings?role=admin", client, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, body = s.do(t, http.MethodPost, "/api/payments/capture", client, map[string]any{"paymentIntentId": "pi_missing"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, 0, s.gw.Calls(ledger.OpCapture), body)
}

func TestRefreshRotatesToken(t *testing.T) {
	s := newTestServer(t)
	pair, err := s.tokens.GeneratePair("client-1")
	require.NoError(t, err)

	code, body := s.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]any{"refreshToken": pair.RefreshToken})
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, body["accessToken"])
	assert.NotEqual(t, pair.RefreshToken, body["refreshToken"])

	code, body = s.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]any{"refreshToken": pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "AUTH_REQUIRED", body["code"])

	code, _ = s.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]any{"refreshToken": pair.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	code, body := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	status := body["status"].(map[string]any)
	assert.Equal(t, true, status["healthy"])
}
