package middleware

import (
	"strings"

	"gigbook/apperror"
	"gigbook/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// bearerToken returns the token from an "Authorization: Bearer" header.
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	return token, token != ""
}

// JWTAuthMiddleware authenticates the caller from an access token and stores
// the user id under "userID". Missing or unusable credentials answer
// AUTH_REQUIRED and expired ones AUTH_EXPIRED, so clients know to refresh.
func JWTAuthMiddleware(tokens *utils.TokenManager, revoked utils.TokenRevoker) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			utils.RespondError(c, apperror.AuthRequired("missing or invalid Authorization header"))
			return
		}

		userID, err := tokens.ExtractSubject(tokenString, utils.TokenTypeAccess)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		if revoked != nil {
			isRevoked, err := revoked.IsRevoked(c.Request.Context(), tokenString)
			if err != nil {
				zap.L().Warn("revocation lookup failed", zap.Error(err))
			} else if isRevoked {
				utils.RespondError(c, apperror.AuthRequired("token revoked"))
				return
			}
		}

		c.Set("userID", userID)
		c.Next()
	}
}

// UserID returns the authenticated caller set by JWTAuthMiddleware.
func UserID(c *gin.Context) string {
	return c.GetString("userID")
}
