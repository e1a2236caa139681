package conversation

import (
	"context"
	"testing"

	"gigbook/apperror"
	conversationRepo "gigbook/database/repository/conversation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBridge_GetOrCreateIsPairScoped(t *testing.T) {
	bridge := NewBridge(conversationRepo.NewMemoryConversationRepo(), zap.NewNop())
	ctx := context.Background()

	first, err := bridge.GetOrCreateConversation(ctx, "client-1", "prov-1", "svc-1", "Plumbing")
	require.NoError(t, err)
	assert.True(t, first.New)
	assert.NotEmpty(t, first.ID)

	again, err := bridge.GetOrCreateConversation(ctx, "prov-1", "client-1", "", "")
	require.NoError(t, err)
	assert.False(t, again.New)
	assert.Equal(t, first.ID, again.ID)

	other, err := bridge.GetOrCreateConversation(ctx, "client-1", "prov-2", "svc-1", "Plumbing")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestBridge_RejectsBadParticipants(t *testing.T) {
	bridge := NewBridge(conversationRepo.NewMemoryConversationRepo(), zap.NewNop())
	ctx := context.Background()

	_, err := bridge.GetOrCreateConversation(ctx, "", "prov-1", "", "")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = bridge.GetOrCreateConversation(ctx, "u1", "u1", "", "")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestPairKeyIsOrderIndependent(t *testing.T) {
	assert.Equal(t, conversationRepo.PairKey("a", "b"), conversationRepo.PairKey("b", "a"))
}
