package handlers

import (
	"net/http"

	"gigbook/apperror"
	"gigbook/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandler struct {
	Tokens  *utils.TokenManager
	Revoker utils.TokenRevoker
}

func NewAuthHandler(tokens *utils.TokenManager, revoker utils.TokenRevoker) *AuthHandler {
	return &AuthHandler{Tokens: tokens, Revoker: revoker}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// RefreshToken handles POST /api/auth/refresh. The presented refresh token is
// revoked and a new pair issued.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	logger := getLogger(c)
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, apperror.AuthRequired("refreshToken is required"))
		return
	}

	userID, err := h.Tokens.ExtractSubject(req.RefreshToken, utils.TokenTypeRefresh)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	ctx := c.Request.Context()
	if h.Revoker != nil {
		revoked, err := h.Revoker.IsRevoked(ctx, req.RefreshToken)
		if err != nil {
			utils.RespondError(c, apperror.Internal(err))
			return
		}
		if revoked {
			utils.RespondError(c, apperror.AuthRequired("refresh token already used"))
			return
		}
	}

	pair, err := h.Tokens.GeneratePair(userID)
	if err != nil {
		utils.RespondError(c, apperror.Internal(err))
		return
	}
	if h.Revoker != nil {
		if err := h.Revoker.Revoke(ctx, req.RefreshToken, h.Tokens.RefreshTTL()); err != nil {
			logger.Warn("failed to revoke rotated refresh token", zap.String("userId", userID), zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, pair)
}
