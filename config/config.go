package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server        ServerConfig        `json:"server"`
	Solana        SolanaConfig        `json:"solana"`
	Redis         RedisConfig         `json:"redis"`
	MongoDB       MongoDBConfig       `json:"mongodb"`
	Auth          AuthConfig          `json:"auth"`
	RateLimit     RateLimitConfig     `json:"rate_limit"`
	Cache         CacheConfig         `json:"cache"`
	GitHub        GitHubConfig        `json:"github"`
	Twitter       TwitterConfig       `json:"twitter"`
	Telegram      TelegramConfig      `json:"telegram"`
	Discord       DiscordConfig       `json:"discord"`
	Vision        VisionConfig        `json:"vision"`
	ReverseSearch ReverseSearchConfig `json:"reverse_search"`
	Model         ModelConfig         `json:"model"`
	GeoIP         GeoIPConfig         `json:"geoip"`
	Log           LogConfig           `json:"log"`
}

type ServerConfig struct {
	Port           int      `json:"port"`
	Host           string   `json:"host"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type SolanaConfig struct {
	RPCURL         string `json:"rpc_url"`
	TokenMint      string `json:"token_mint"`
	StakingProgram string `json:"staking_program"`
	Timeout        int    `json:"timeout_seconds"`
	MaxRetries     int    `json:"max_retries"`
	HistoryLimit   int    `json:"history_limit"`
}

type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Enabled  bool   `json:"enabled"`
	UseTLS   bool   `json:"use_tls"`
}

type MongoDBConfig struct {
	URI      string `json:"uri"`
	Database string `json:"database"`
	Enabled  bool   `json:"enabled"`
}

// AuthConfig holds the HMAC secrets for API credentials. JWTSecret signs and
// verifies; PreviousSecrets only verify, so keys can be rotated.
type AuthConfig struct {
	JWTSecret       string   `json:"jwt_secret"`
	PreviousSecrets []string `json:"previous_secrets"`
	TokenTTL        int      `json:"token_ttl_hours"`
}

type RateLimitConfig struct {
	Limit  int64 `json:"limit"`
	Window int   `json:"window_seconds"`
}

type CacheConfig struct {
	RawDataTTL int `json:"raw_data_ttl_seconds"`
	AccessTTL  int `json:"access_ttl_seconds"`
}

type GitHubConfig struct {
	Token   string `json:"token"`
	BaseURL string `json:"base_url"`
}

type TwitterConfig struct {
	BearerToken string `json:"bearer_token"`
	UserToken   string `json:"user_token"` // OAuth2 user context, needed for posting
	BaseURL     string `json:"base_url"`
}

type TelegramConfig struct {
	BotToken         string `json:"bot_token"`
	AlphaChannelID   int64  `json:"alpha_channel_id"`
	RegularChannelID int64  `json:"regular_channel_id"`
	PremiumDelay     int    `json:"premium_delay_seconds"`
}

type DiscordConfig struct {
	BotToken  string `json:"bot_token"`
	ChannelID string `json:"channel_id"`
}

type VisionConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

type ReverseSearchConfig struct {
	APIKey string `json:"api_key"`
	URL    string `json:"url"`
}

type ModelConfig struct {
	Endpoint string `json:"endpoint"`
}

type GeoIPConfig struct {
	DBPath string `json:"db_path"`
}

type LogConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

// Default returns the configuration used before any file, env or flag is applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8000,
			Host:           "0.0.0.0",
			AllowedOrigins: []string{"*"},
		},
		Solana: SolanaConfig{
			RPCURL:         "https://api.mainnet-beta.solana.com",
			StakingProgram: "StakeProgram1111111111111111111111111111111",
			Timeout:        30,
			MaxRetries:     1,
			HistoryLimit:   1000,
		},
		Redis: RedisConfig{
			Address: "localhost:6379",
			Enabled: true,
		},
		MongoDB: MongoDBConfig{
			URI:      "mongodb://localhost:27017",
			Database: "cynix",
			Enabled:  false,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * 30,
		},
		RateLimit: RateLimitConfig{
			Limit:  100,
			Window: 60,
		},
		Cache: CacheConfig{
			RawDataTTL: 300,
			AccessTTL:  60,
		},
		GitHub: GitHubConfig{
			BaseURL: "https://api.github.com/",
		},
		Twitter: TwitterConfig{
			BaseURL: "https://api.twitter.com",
		},
		Telegram: TelegramConfig{
			PremiumDelay: 900,
		},
		Vision: VisionConfig{
			BaseURL: "https://vision.googleapis.com",
		},
		ReverseSearch: ReverseSearchConfig{
			URL: "https://api.tineye.com/rest/search/",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := Default()

	// Load from config file if exists
	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config/config.json"
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := loadFile(configPath, cfg); err != nil {
			return nil, err
		}
	}

	// Load from environment variables (overrides config file)
	loadEnv(cfg)

	// Load from command-line flags (overrides everything)
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	var serverPort int
	var serverHost string

	fs.IntVar(&serverPort, "port", 0, "Server port")
	fs.StringVar(&serverHost, "host", "", "Server host")

	_ = fs.Parse(os.Args[1:])

	if isFlagPassed(fs, "port") {
		cfg.Server.Port = serverPort
	}
	if isFlagPassed(fs, "host") {
		cfg.Server.Host = serverHost
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the keys the API cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.Solana.RPCURL == "" {
		errs = append(errs, errors.New("missing required config key: solana.rpc_url"))
	}
	if c.Solana.TokenMint == "" {
		errs = append(errs, errors.New("missing required config key: solana.token_mint"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("missing required config key: auth.jwt_secret"))
	}
	if c.RateLimit.Limit <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate_limit.limit and rate_limit.window_seconds must be positive"))
	}
	return errors.Join(errs...)
}

func isFlagPassed(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// getEnv returns the first non-empty value among the given variable names.
func getEnv(names ...string) string {
	for _, name := range names {
		if val := os.Getenv(name); val != "" {
			return val
		}
	}
	return ""
}

func setString(dst *string, names ...string) {
	if val := getEnv(names...); val != "" {
		*dst = val
	}
}

func setInt(dst *int, names ...string) {
	if val := getEnv(names...); val != "" {
		if p, err := strconv.Atoi(val); err == nil {
			*dst = p
		}
	}
}

func setInt64(dst *int64, names ...string) {
	if val := getEnv(names...); val != "" {
		if p, err := strconv.ParseInt(val, 10, 64); err == nil {
			*dst = p
		}
	}
}

func setBool(dst *bool, names ...string) {
	if val := getEnv(names...); val != "" {
		*dst = val == "true" || val == "1"
	}
}

func setList(dst *[]string, names ...string) {
	if val := getEnv(names...); val != "" {
		parts := strings.Split(val, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		*dst = parts
	}
}

func loadEnv(cfg *Config) {
	// Server configuration
	setInt(&cfg.Server.Port, "SERVER_PORT", "CYNIX_PORT")
	setString(&cfg.Server.Host, "SERVER_HOST", "CYNIX_HOST")
	setList(&cfg.Server.AllowedOrigins, "ALLOWED_ORIGINS")

	// Solana configuration
	setString(&cfg.Solana.RPCURL, "CYNIX_SOLANA_RPC_URL", "SOLANA_RPC_URL")
	setString(&cfg.Solana.TokenMint, "CYNIX_CYNIX_TOKEN_ADDRESS", "CYNIX_TOKEN_ADDRESS")
	setString(&cfg.Solana.StakingProgram, "CYNIX_STAKING_PROGRAM", "STAKING_PROGRAM")
	setInt(&cfg.Solana.Timeout, "SOLANA_TIMEOUT")
	setInt(&cfg.Solana.MaxRetries, "SOLANA_MAX_RETRIES")
	setInt(&cfg.Solana.HistoryLimit, "SOLANA_HISTORY_LIMIT")

	// Redis configuration
	if val := getEnv("CYNIX_REDIS_URL", "REDIS_URL"); val != "" {
		applyRedisURL(&cfg.Redis, val)
	}
	setString(&cfg.Redis.Address, "REDIS_ADDRESS")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setBool(&cfg.Redis.Enabled, "REDIS_ENABLED")
	setBool(&cfg.Redis.UseTLS, "REDIS_USE_TLS")

	// MongoDB configuration
	setString(&cfg.MongoDB.URI, "MONGODB_URI")
	setString(&cfg.MongoDB.Database, "MONGODB_DATABASE")
	setBool(&cfg.MongoDB.Enabled, "MONGODB_ENABLED")

	// Auth and rate limiting
	setString(&cfg.Auth.JWTSecret, "CYNIX_JWT_SECRET", "JWT_SECRET")
	setList(&cfg.Auth.PreviousSecrets, "CYNIX_JWT_PREVIOUS_SECRETS")
	setInt(&cfg.Auth.TokenTTL, "CYNIX_TOKEN_TTL_HOURS")
	setInt64(&cfg.RateLimit.Limit, "RATE_LIMIT", "CYNIX_RATE_LIMIT")
	setInt(&cfg.RateLimit.Window, "RATE_LIMIT_WINDOW", "CYNIX_RATE_LIMIT_WINDOW")

	// Cache configuration
	setInt(&cfg.Cache.RawDataTTL, "CACHE_TTL", "CYNIX_RAW_DATA_TTL")
	setInt(&cfg.Cache.AccessTTL, "ACCESS_CACHE_TTL")

	// Upstream APIs
	setString(&cfg.GitHub.Token, "CYNIX_GITHUB_TOKEN", "GITHUB_TOKEN")
	setString(&cfg.Twitter.BearerToken, "CYNIX_TWITTER_BEARER_TOKEN", "TWITTER_BEARER_TOKEN")
	setString(&cfg.Twitter.UserToken, "CYNIX_TWITTER_USER_TOKEN")
	setString(&cfg.Vision.APIKey, "CYNIX_VISION_API_KEY")
	setString(&cfg.ReverseSearch.APIKey, "CYNIX_TINEYE_API_KEY")
	setString(&cfg.ReverseSearch.URL, "CYNIX_REVERSE_SEARCH_URL")
	setString(&cfg.Model.Endpoint, "CYNIX_MODEL_ENDPOINT")

	// Messaging
	setString(&cfg.Telegram.BotToken, "CYNIX_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN")
	if val := getEnv("CYNIX_ALPHA_CHANNEL_ID"); val != "" {
		if id, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Telegram.AlphaChannelID = id
		}
	}
	if val := getEnv("CYNIX_REGULAR_CHANNEL_ID"); val != "" {
		if id, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Telegram.RegularChannelID = id
		}
	}
	setInt(&cfg.Telegram.PremiumDelay, "CYNIX_PREMIUM_DELAY")
	setString(&cfg.Discord.BotToken, "DISCORD_BOT_TOKEN")
	setString(&cfg.Discord.ChannelID, "DISCORD_CHANNEL_ID")

	// GeoIP and logging
	setString(&cfg.GeoIP.DBPath, "GEOIP_DB_PATH")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setBool(&cfg.Log.Development, "LOG_DEVELOPMENT")
}

// applyRedisURL accepts redis://[:password@]host:port[/db] and rediss:// for TLS.
func applyRedisURL(rc *RedisConfig, raw string) {
	rest := raw
	switch {
	case strings.HasPrefix(rest, "rediss://"):
		rc.UseTLS = true
		rest = strings.TrimPrefix(rest, "rediss://")
	case strings.HasPrefix(rest, "redis://"):
		rc.UseTLS = false
		rest = strings.TrimPrefix(rest, "redis://")
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		creds := rest[:at]
		if colon := strings.Index(creds, ":"); colon >= 0 {
			creds = creds[colon+1:]
		}
		rc.Password = creds
		rest = rest[at+1:]
	}
	if slash := strings.Index(rest, "/"); slash >= 0 {
		if db, err := strconv.Atoi(rest[slash+1:]); err == nil {
			rc.DB = db
		}
		rest = rest[:slash]
	}
	if rest != "" {
		rc.Address = rest
	}
}

// Helper methods for duration conversion
func (c *Config) SolanaTimeoutDuration() time.Duration {
	return time.Duration(c.Solana.Timeout) * time.Second
}

func (c *Config) RateLimitWindowDuration() time.Duration {
	return time.Duration(c.RateLimit.Window) * time.Second
}

func (c *Config) RawDataTTLDuration() time.Duration {
	return time.Duration(c.Cache.RawDataTTL) * time.Second
}

func (c *Config) AccessTTLDuration() time.Duration {
	return time.Duration(c.Cache.AccessTTL) * time.Second
}

func (c *Config) PremiumDelayDuration() time.Duration {
	return time.Duration(c.Telegram.PremiumDelay) * time.Second
}

func (c *Config) TokenTTLDuration() time.Duration {
	return time.Duration(c.Auth.TokenTTL) * time.Hour
}
