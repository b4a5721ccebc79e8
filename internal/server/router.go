package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dimsum-app/backend/internal/auth"
	"github.com/dimsum-app/backend/internal/interactions"
	"github.com/dimsum-app/backend/internal/users"
	"github.com/dimsum-app/backend/internal/wallet"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingTokenService     = errors.New("token service dependency required")
	errMissingCodeExchanger    = errors.New("code exchanger dependency required")
	errMissingUserService      = errors.New("user service dependency required")
	errMissingBindingService   = errors.New("wallet binding service dependency required")
	errMissingNonceRegistry    = errors.New("nonce registry dependency required")
	errMissingInteractions     = errors.New("interaction service dependency required")
)

// CodeExchanger resolves a miniprogram login code into an external identity.
type CodeExchanger interface {
	ExchangeCode(ctx context.Context, code string) (auth.WeChatSession, error)
}

type Dependencies struct {
	Sessions     *auth.SessionValidator
	Tokens       *auth.TokenService
	WeChat       CodeExchanger
	Users        *users.Service
	Binding      *wallet.BindingService
	Nonces       *wallet.Registry
	Interactions *interactions.Service
	Logger       *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Tokens == nil {
		return nil, errMissingTokenService
	}
	if deps.WeChat == nil {
		return nil, errMissingCodeExchanger
	}
	if deps.Users == nil {
		return nil, errMissingUserService
	}
	if deps.Binding == nil {
		return nil, errMissingBindingService
	}
	if deps.Nonces == nil {
		return nil, errMissingNonceRegistry
	}
	if deps.Interactions == nil {
		return nil, errMissingInteractions
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		sessions:     deps.Sessions,
		tokens:       deps.Tokens,
		wechat:       deps.WeChat,
		users:        deps.Users,
		binding:      deps.Binding,
		nonces:       deps.Nonces,
		interactions: deps.Interactions,
		logger:       logger,
	}

	router.GET("/healthz", handler.handleHealthz)
	router.POST("/auth/login", handler.handleLogin)
	router.POST("/auth/refresh", handler.handleRefresh)
	router.POST("/content/view", handler.optionalIdentity, handler.handleContentView)

	// Web surface: cookie session minted by the external auth frontend.
	session := router.Group("/")
	session.Use(handler.requireSession)
	session.GET("/wallet/nonce", handler.handleWalletNonce)
	session.POST("/wallet/bind", handler.handleWalletBind)
	session.POST("/wallet/unbind", handler.handleWalletUnbind)
	session.POST("/interactions", handler.handleInteractionUpsert)
	session.GET("/interactions", handler.handleInteractionGet)

	// Miniprogram surface: stateless bearer tokens.
	bearer := router.Group("/")
	bearer.Use(handler.requireBearer)
	bearer.GET("/user/profile", handler.handleProfile)

	tagger := router.Group("/tagger")
	tagger.Use(handler.requireBearer, handler.requireRoles(users.TaggerRoles()...))
	tagger.GET("/profile", handler.handleProfile)

	return router, nil
}

type httpHandler struct {
	sessions     *auth.SessionValidator
	tokens       *auth.TokenService
	wechat       CodeExchanger
	users        *users.Service
	binding      *wallet.BindingService
	nonces       *wallet.Registry
	interactions *interactions.Service
	logger       *zap.Logger
}

func (h *httpHandler) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
