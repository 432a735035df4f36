package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Repo      RepoConfig      `yaml:"repo"`
	Policy    PolicyConfig    `yaml:"policy"`
	Store     StoreConfig     `yaml:"store"`
	Retention RetentionConfig `yaml:"retention"`
	Author    AuthorConfig    `yaml:"author"`
	Notify    NotifyConfig    `yaml:"notify"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig はサーバー設定
type ServerConfig struct {
	Host string `yaml:"host" env:"ADMIN_HOST"`
	Port int    `yaml:"port" env:"ADMIN_PORT"`
}

// AuthConfig は認証設定
type AuthConfig struct {
	Token string `yaml:"token" env:"ADMIN_TOKEN"` // 環境変数から読み込み推奨
}

// RepoConfig は作業ツリー設定
type RepoConfig struct {
	Path           string        `yaml:"path" env:"REPO_PATH"`
	CommandTimeout time.Duration `yaml:"command_timeout" env:"PATCHGATE_COMMAND_TIMEOUT"`
}

// PolicyConfig はパッチ受け入れポリシー設定
type PolicyConfig struct {
	AllowedPrefixes []string `yaml:"allowed_prefixes" env:"ALLOWED_PREFIXES" envSeparator:","`
	MaxPatchBytes   int      `yaml:"max_patch_bytes" env:"MAX_PATCH_BYTES"`
}

// StoreConfig は提案ストア設定
type StoreConfig struct {
	Driver string `yaml:"driver" env:"PATCHGATE_STORE_DRIVER"` // "json" or "sqlite"
	Path   string `yaml:"path" env:"PROPOSALS_PATH"`
}

// RetentionConfig は提案の保持ポリシー設定
type RetentionConfig struct {
	Schedule string        `yaml:"schedule" env:"PATCHGATE_RETENTION_SCHEDULE"`
	MaxAge   time.Duration `yaml:"max_age" env:"PATCHGATE_RETENTION_MAX_AGE"`
	MaxCount *int          `yaml:"max_count" env:"PATCHGATE_RETENTION_MAX_COUNT"`
}

// AuthorConfig はパッチ生成用LLM設定
type AuthorConfig struct {
	Provider             string        `yaml:"provider" env:"PATCHGATE_AUTHOR_PROVIDER"` // "", "openai", "anthropic"
	BaseURL              string        `yaml:"base_url" env:"OPENCLAW_GATEWAY_URL"`
	APIKey               string        `yaml:"api_key" env:"OPENCLAW_GATEWAY_TOKEN"` // 環境変数から読み込み推奨
	Model                string        `yaml:"model" env:"PATCHGATE_AUTHOR_MODEL"`
	AgentID              string        `yaml:"agent_id" env:"OPENCLAW_AGENT_ID"`
	SessionKey           string        `yaml:"session_key" env:"OPENCLAW_SESSION_KEY"`
	CFAccessClientID     string        `yaml:"cf_access_client_id" env:"CF_ACCESS_CLIENT_ID"`
	CFAccessClientSecret string        `yaml:"cf_access_client_secret" env:"CF_ACCESS_CLIENT_SECRET"`
	MaxTokens            int           `yaml:"max_tokens" env:"PATCHGATE_AUTHOR_MAX_TOKENS"`
	Timeout              time.Duration `yaml:"timeout" env:"PATCHGATE_AUTHOR_TIMEOUT"`
}

// NotifyConfig は通知先設定
type NotifyConfig struct {
	Slack    SlackConfig    `yaml:"slack"`
	Discord  DiscordConfig  `yaml:"discord"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// SlackConfig はSlack通知設定
type SlackConfig struct {
	Token   string `yaml:"token" env:"PATCHGATE_SLACK_TOKEN"`
	Channel string `yaml:"channel" env:"PATCHGATE_SLACK_CHANNEL"`
}

// DiscordConfig はDiscord通知設定
type DiscordConfig struct {
	Token     string `yaml:"token" env:"PATCHGATE_DISCORD_TOKEN"`
	ChannelID string `yaml:"channel_id" env:"PATCHGATE_DISCORD_CHANNEL_ID"`
}

// TelegramConfig はTelegram通知設定
type TelegramConfig struct {
	Token  string `yaml:"token" env:"PATCHGATE_TELEGRAM_TOKEN"`
	ChatID int64  `yaml:"chat_id" env:"PATCHGATE_TELEGRAM_CHAT_ID"`
}

// RateLimitConfig は変更系エンドポイントのレート制限設定（RPS 0 で無効）
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" env:"PATCHGATE_RATE_LIMIT_RPS"`
	Burst int     `yaml:"burst" env:"PATCHGATE_RATE_LIMIT_BURST"`
}

// LogConfig はログ設定
type LogConfig struct {
	Level  string `yaml:"level" env:"PATCHGATE_LOG_LEVEL"`
	Format string `yaml:"format" env:"PATCHGATE_LOG_FORMAT"`
}

const (
	DefaultPort          = 18888
	DefaultRepoPath      = "."
	DefaultStorePath     = "/tmp/topanga-admin-proposals.json"
	DefaultMaxPatchBytes = 200_000
	DefaultRetentionMax  = 500
)

// DefaultAllowedPrefixes は許可リストのデフォルト値
var DefaultAllowedPrefixes = []string{"frontend/", "README.md", ".gitignore"}

// LoadConfig は設定を読み込む。pathが空またはファイルが存在しない場合は環境変数とデフォルト値のみを使う。
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config YAML: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
			// 設定ファイルは任意
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// 環境変数で上書き
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults はデフォルト値を設定
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}

	if c.Repo.Path == "" {
		c.Repo.Path = DefaultRepoPath
	}
	if c.Repo.CommandTimeout == 0 {
		c.Repo.CommandTimeout = 60 * time.Second
	}

	c.Policy.AllowedPrefixes = cleanList(c.Policy.AllowedPrefixes)
	if len(c.Policy.AllowedPrefixes) == 0 {
		c.Policy.AllowedPrefixes = append([]string(nil), DefaultAllowedPrefixes...)
	}
	if c.Policy.MaxPatchBytes == 0 {
		c.Policy.MaxPatchBytes = DefaultMaxPatchBytes
	}

	if c.Store.Driver == "" {
		c.Store.Driver = "json"
	}
	if c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}

	if c.Retention.Schedule == "" {
		c.Retention.Schedule = "@hourly"
	}
	if c.Retention.MaxAge == 0 {
		c.Retention.MaxAge = 7 * 24 * time.Hour
	}
	if c.Retention.MaxCount == nil {
		n := DefaultRetentionMax
		c.Retention.MaxCount = &n
	}

	if c.Author.Model == "" {
		switch c.Author.Provider {
		case "anthropic":
			c.Author.Model = "claude-sonnet-4-20250514"
		default:
			c.Author.Model = "openclaw"
		}
	}
	if c.Author.AgentID == "" {
		c.Author.AgentID = "main"
	}
	if c.Author.SessionKey == "" {
		c.Author.SessionKey = "agent:main:main"
	}
	if c.Author.MaxTokens == 0 {
		c.Author.MaxTokens = 8192
	}
	if c.Author.Timeout == 0 {
		c.Author.Timeout = 120 * time.Second
	}

	if c.RateLimit.RPS > 0 && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 1
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate は設定の妥当性を検証
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}

	// トークン未設定のまま起動すると全リクエストが401になる
	if c.Auth.Token == "" {
		return fmt.Errorf("auth token is required (ADMIN_TOKEN)")
	}

	if c.Policy.MaxPatchBytes < 0 {
		return fmt.Errorf("invalid max_patch_bytes: %d", c.Policy.MaxPatchBytes)
	}

	switch c.Store.Driver {
	case "json", "sqlite":
	default:
		return fmt.Errorf("unknown store driver: %q (must be json or sqlite)", c.Store.Driver)
	}

	if !gronx.New().IsValid(c.Retention.Schedule) {
		return fmt.Errorf("invalid retention schedule: %q", c.Retention.Schedule)
	}
	if c.Retention.MaxAge < 0 || *c.Retention.MaxCount < 0 {
		return fmt.Errorf("retention limits must not be negative")
	}

	switch c.Author.Provider {
	case "":
	case "openai":
		if c.Author.BaseURL == "" {
			return fmt.Errorf("author base_url is required for provider openai")
		}
	case "anthropic":
		if c.Author.APIKey == "" {
			return fmt.Errorf("author api_key is required for provider anthropic")
		}
	default:
		return fmt.Errorf("unknown author provider: %q", c.Author.Provider)
	}

	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("invalid rate_limit.rps: %v", c.RateLimit.RPS)
	}

	return nil
}

// Addr はリッスンアドレスを返す
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
