package server

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dimsum-app/backend/internal/auth"
	"github.com/dimsum-app/backend/internal/corpus"
	"github.com/dimsum-app/backend/internal/interactions"
	"github.com/dimsum-app/backend/internal/users"
	"github.com/dimsum-app/backend/internal/wallet"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testSessionSecret = "web-session-secret"
	testSessionIssuer = "dimsum-web"
	testTokenSecret   = "miniprogram-secret"
	testTokenIssuer   = "dimsum-miniprogram"
	testCookieName    = "app_session"
)

type stubExchanger struct {
	session auth.WeChatSession
	err     error
}

func (s stubExchanger) ExchangeCode(context.Context, string) (auth.WeChatSession, error) {
	if s.err != nil {
		return auth.WeChatSession{}, s.err
	}
	return s.session, nil
}

type routerFixture struct {
	handler http.Handler
	db      *gorm.DB
	tokens  *auth.TokenService
}

func newRouterFixture(t *testing.T, exchanger CodeExchanger) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&users.User{}, &wallet.Nonce{}, &corpus.Entry{}, &interactions.Record{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct user service: %v", err)
	}
	registry, err := wallet.NewRegistry(wallet.RegistryConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct registry: %v", err)
	}
	binding, err := wallet.NewBindingService(wallet.BindingServiceConfig{
		Database: db,
		Registry: registry,
		Verifier: wallet.NewPersonalSignVerifier(),
	})
	if err != nil {
		t.Fatalf("failed to construct binding service: %v", err)
	}
	ledger, err := interactions.NewService(interactions.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct ledger: %v", err)
	}
	tokens, err := auth.NewTokenService(auth.TokenServiceConfig{
		SigningSecret: []byte(testTokenSecret),
		Issuer:        testTokenIssuer,
	})
	if err != nil {
		t.Fatalf("failed to construct token service: %v", err)
	}
	sessions, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSessionSecret),
		Issuer:        testSessionIssuer,
		CookieName:    testCookieName,
	})
	if err != nil {
		t.Fatalf("failed to construct session validator: %v", err)
	}

	if exchanger == nil {
		exchanger = stubExchanger{err: auth.ErrCodeExchangeFailed}
	}
	handler, err := NewHTTPHandler(Dependencies{
		Sessions:     sessions,
		Tokens:       tokens,
		WeChat:       exchanger,
		Users:        userService,
		Binding:      binding,
		Nonces:       registry,
		Interactions: ledger,
		Logger:       zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}

	return &routerFixture{handler: handler, db: db, tokens: tokens}
}

func (f *routerFixture) seedUser(t *testing.T, user users.User) users.User {
	t.Helper()
	if user.Role == "" {
		user.Role = users.RoleUser
	}
	if err := f.db.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user %s: %v", user.ID, err)
	}
	return user
}

func (f *routerFixture) seedEntry(t *testing.T, id, data string) {
	t.Helper()
	entry := corpus.Entry{UniqueID: id, Category: "slang", Data: data}
	if err := f.db.Create(&entry).Error; err != nil {
		t.Fatalf("failed to seed entry %s: %v", id, err)
	}
}

func (f *routerFixture) sessionCookie(t *testing.T, userID string) *http.Cookie {
	t.Helper()
	claims := auth.SessionClaims{
		UserID: userID,
		Role:   string(users.RoleUser),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    testSessionIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSessionSecret))
	if err != nil {
		t.Fatalf("failed to sign session token: %v", err)
	}
	return &http.Cookie{Name: testCookieName, Value: signed}
}

func (f *routerFixture) accessToken(t *testing.T, user users.User) string {
	t.Helper()
	pair, err := f.tokens.IssuePair(auth.TokenPayload{
		UserID:        user.ID,
		Role:          user.Role,
		IsSystemAdmin: user.IsSystemAdmin,
		Generation:    user.TokenGeneration,
	})
	if err != nil {
		t.Fatalf("failed to issue token pair: %v", err)
	}
	return pair.AccessToken
}

func (f *routerFixture) do(t *testing.T, method, path string, body interface{}, decorate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if decorate != nil {
		decorate(request)
	}
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func newSigningKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	address := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()
	return key, address
}

func signPersonalMessage(t *testing.T, key *ecdsa.PrivateKey, message string) string {
	t.Helper()
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	signature, err := ethcrypto.Sign(ethcrypto.Keccak256([]byte(prefixed)), key)
	if err != nil {
		t.Fatalf("failed to sign message: %v", err)
	}
	// Wallets emit V as 27/28.
	signature[64] += 27
	return "0x" + fmt.Sprintf("%x", signature)
}
