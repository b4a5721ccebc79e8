package server

import (
	"errors"
	"net/http"

	"github.com/dimsum-app/backend/internal/auth"
	"github.com/dimsum-app/backend/internal/interactions"
	"github.com/dimsum-app/backend/internal/users"
	"github.com/dimsum-app/backend/internal/wallet"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorMapping struct {
	sentinel error
	status   int
	code     string
}

// Sentinel-to-status table. First match wins; anything unmatched is an
// internal error so service internals never leak to clients.
var errorMappings = []errorMapping{
	{wallet.ErrInvalidNonce, http.StatusBadRequest, "invalid_nonce"},
	{wallet.ErrExpiredNonce, http.StatusBadRequest, "expired_nonce"},
	{wallet.ErrInvalidSignature, http.StatusBadRequest, "invalid_signature"},
	{wallet.ErrSignatureMismatch, http.StatusBadRequest, "signature_mismatch"},
	{wallet.ErrInvalidAddress, http.StatusBadRequest, "invalid_address"},
	{wallet.ErrNoWalletBound, http.StatusBadRequest, "no_wallet_bound"},
	{wallet.ErrAddressAlreadyBound, http.StatusConflict, "address_already_bound"},
	{users.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{interactions.ErrContentNotFound, http.StatusNotFound, "content_not_found"},
	{interactions.ErrUnknownListFilter, http.StatusBadRequest, "invalid_request"},
	{users.ErrStaleTokenGeneration, http.StatusUnauthorized, "invalid_token"},
	{auth.ErrInvalidOrExpiredToken, http.StatusUnauthorized, "invalid_token"},
	{auth.ErrCodeExchangeFailed, http.StatusUnauthorized, "code_exchange_failed"},
	{auth.ErrMissingUnionID, http.StatusUnauthorized, "union_id_required"},
}

func (h *httpHandler) writeError(c *gin.Context, err error) {
	for _, mapping := range errorMappings {
		if errors.Is(err, mapping.sentinel) {
			c.JSON(mapping.status, gin.H{"error": mapping.code})
			return
		}
	}
	h.logger.Error("request failed",
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}
