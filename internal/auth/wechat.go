package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

const defaultWeChatEndpoint = "https://api.weixin.qq.com/sns/jscode2session"

var (
	// ErrCodeExchangeFailed indicates WeChat rejected the login code.
	ErrCodeExchangeFailed = errors.New("auth: wechat code exchange failed")
	// ErrMissingUnionID indicates the WeChat account is not bound to the
	// open platform, so no cross-app identifier exists to match against.
	ErrMissingUnionID = errors.New("auth: wechat union id missing")

	errWeChatMissingAppID  = errors.New("auth: wechat app id required")
	errWeChatMissingSecret = errors.New("auth: wechat app secret required")
)

// WeChatSession is the identity handed back by the jscode2session exchange.
type WeChatSession struct {
	OpenID  string
	UnionID string
}

// WeChatClientConfig configures the external code-exchange client.
type WeChatClientConfig struct {
	AppID      string
	AppSecret  string
	Endpoint   string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// WeChatClient exchanges miniprogram login codes against the WeChat API.
// The API is consumed, not reimplemented: one GET, one JSON document.
type WeChatClient struct {
	appID      string
	appSecret  string
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewWeChatClient constructs a client with validated configuration.
func NewWeChatClient(cfg WeChatClientConfig) (*WeChatClient, error) {
	appID := strings.TrimSpace(cfg.AppID)
	if appID == "" {
		return nil, errWeChatMissingAppID
	}
	appSecret := strings.TrimSpace(cfg.AppSecret)
	if appSecret == "" {
		return nil, errWeChatMissingSecret
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultWeChatEndpoint
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeChatClient{
		appID:      appID,
		appSecret:  appSecret,
		endpoint:   endpoint,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type jscodeResponse struct {
	OpenID     string `json:"openid"`
	SessionKey string `json:"session_key"`
	UnionID    string `json:"unionid"`
	ErrCode    int    `json:"errcode"`
	ErrMsg     string `json:"errmsg"`
}

// ExchangeCode resolves a wx.login() code into the caller's WeChat identity.
func (c *WeChatClient) ExchangeCode(ctx context.Context, code string) (WeChatSession, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return WeChatSession{}, fmt.Errorf("%w: empty code", ErrCodeExchangeFailed)
	}

	query := url.Values{}
	query.Set("appid", c.appID)
	query.Set("secret", c.appSecret)
	query.Set("js_code", trimmed)
	query.Set("grant_type", "authorization_code")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return WeChatSession{}, err
	}

	response, err := c.httpClient.Do(req)
	if err != nil {
		return WeChatSession{}, fmt.Errorf("%w: %v", ErrCodeExchangeFailed, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return WeChatSession{}, fmt.Errorf("%w: status %d", ErrCodeExchangeFailed, response.StatusCode)
	}

	var document jscodeResponse
	if err := json.NewDecoder(response.Body).Decode(&document); err != nil {
		return WeChatSession{}, fmt.Errorf("%w: %v", ErrCodeExchangeFailed, err)
	}
	if document.ErrCode != 0 {
		c.logger.Warn("wechat rejected login code",
			zap.Int("errcode", document.ErrCode),
			zap.String("errmsg", document.ErrMsg))
		return WeChatSession{}, fmt.Errorf("%w: errcode %d: %s", ErrCodeExchangeFailed, document.ErrCode, document.ErrMsg)
	}
	if document.UnionID == "" {
		return WeChatSession{}, ErrMissingUnionID
	}

	return WeChatSession{OpenID: document.OpenID, UnionID: document.UnionID}, nil
}
