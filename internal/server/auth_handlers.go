package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/dimsum-app/backend/internal/auth"
	"github.com/dimsum-app/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type loginRequestPayload struct {
	Code string `json:"code"`
}

type tokenPairPayload struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type loginResponsePayload struct {
	tokenPairPayload
	User users.Profile `json:"user"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Code) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	session, err := h.wechat.ExchangeCode(c.Request.Context(), request.Code)
	if err != nil {
		h.logger.Warn("login code exchange failed", zap.Error(err))
		h.writeError(c, err)
		return
	}

	user, err := h.users.GetByUnionID(c.Request.Context(), session.UnionID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	pair, err := h.tokens.IssuePair(auth.TokenPayload{
		UserID:        user.ID,
		UnionID:       session.UnionID,
		Role:          user.Role,
		IsSystemAdmin: user.IsSystemAdmin,
		Generation:    user.TokenGeneration,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, loginResponsePayload{
		tokenPairPayload: asTokenPairPayload(pair),
		User:             user.AsProfile(),
	})
}

type refreshRequestPayload struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *httpHandler) handleRefresh(c *gin.Context) {
	var request refreshRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.RefreshToken) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	payload, err := h.tokens.Verify(request.RefreshToken, auth.TokenUseRefresh)
	if err != nil {
		h.writeError(c, err)
		return
	}

	// Rotation: the presented generation must still be current; the bump
	// invalidates the token just used so a stolen refresh token dies on
	// first legitimate rotation.
	user, err := h.users.RotateTokenGeneration(c.Request.Context(), payload.UserID, payload.Generation)
	if err != nil {
		h.writeError(c, err)
		return
	}

	unionID := ""
	if user.UnionID != nil {
		unionID = *user.UnionID
	}
	pair, err := h.tokens.IssuePair(auth.TokenPayload{
		UserID:        user.ID,
		UnionID:       unionID,
		Role:          user.Role,
		IsSystemAdmin: user.IsSystemAdmin,
		Generation:    user.TokenGeneration,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, asTokenPairPayload(pair))
}

func (h *httpHandler) handleProfile(c *gin.Context) {
	id, ok := currentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), id.UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user.AsProfile())
}

func asTokenPairPayload(pair auth.TokenPair) tokenPairPayload {
	return tokenPairPayload{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "Bearer",
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}
