package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix               = "DIMSUM"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultDatabasePath     = "dimsum.db"
	defaultLogLevel         = "info"
	defaultCookieName       = "app_session"
	defaultTokenIssuer      = "dimsum-miniprogram"
	defaultSessionIssuer    = "dimsum-web"
	defaultAccessTTLHours   = 168
	defaultRefreshTTLHours  = 720
	defaultWeChatAPIBaseURL = "https://api.weixin.qq.com/sns/jscode2session"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress          string
	DatabasePath         string
	LogLevel             string
	TokenSigningSecret   string
	TokenIssuer          string
	AccessTTLHours       int
	RefreshTTLHours      int
	SessionSigningSecret string
	SessionIssuer        string
	SessionCookieName    string
	WeChatAppID          string
	WeChatAppSecret      string
	WeChatEndpoint       string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("token.issuer", defaultTokenIssuer)
	configViper.SetDefault("token.access_ttl_hours", defaultAccessTTLHours)
	configViper.SetDefault("token.refresh_ttl_hours", defaultRefreshTTLHours)
	configViper.SetDefault("session.issuer", defaultSessionIssuer)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("wechat.endpoint", defaultWeChatAPIBaseURL)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:          configViper.GetString("http.address"),
		DatabasePath:         configViper.GetString("database.path"),
		LogLevel:             configViper.GetString("log.level"),
		TokenSigningSecret:   configViper.GetString("token.signing_secret"),
		TokenIssuer:          configViper.GetString("token.issuer"),
		AccessTTLHours:       configViper.GetInt("token.access_ttl_hours"),
		RefreshTTLHours:      configViper.GetInt("token.refresh_ttl_hours"),
		SessionSigningSecret: configViper.GetString("session.signing_secret"),
		SessionIssuer:        configViper.GetString("session.issuer"),
		SessionCookieName:    configViper.GetString("session.cookie_name"),
		WeChatAppID:          configViper.GetString("wechat.app_id"),
		WeChatAppSecret:      configViper.GetString("wechat.app_secret"),
		WeChatEndpoint:       configViper.GetString("wechat.endpoint"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.TokenSigningSecret) == "" {
		return fmt.Errorf("token.signing_secret is required")
	}
	if strings.TrimSpace(c.SessionSigningSecret) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if c.AccessTTLHours <= 0 || c.RefreshTTLHours <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if c.RefreshTTLHours < c.AccessTTLHours {
		return fmt.Errorf("token.refresh_ttl_hours must not be shorter than token.access_ttl_hours")
	}
	return nil
}
