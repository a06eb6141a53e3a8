package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/vietddude/solwatch/internal/core/domain"
	redisclient "github.com/vietddude/solwatch/internal/infra/redis"
	"github.com/vietddude/solwatch/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
	Database     postgres.Config    `yaml:"database"`
	Redis        redisclient.Config `yaml:"redis"`
	Solana       SolanaConfig       `yaml:"solana"`
	Indexer      IndexerConfig      `yaml:"indexer"`
	Subscription SubscriptionConfig `yaml:"subscription"`
	Programs     ProgramsConfig     `yaml:"programs"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"` // 0 disables the health server
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// SolanaConfig holds the ledger node endpoints.
type SolanaConfig struct {
	HTTPURL        string        `yaml:"http_url"`
	WSURL          string        `yaml:"ws_url"`
	Commitment     string        `yaml:"commitment"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	BlockEncoding  string        `yaml:"block_encoding"` // base64 or base64+zstd
}

// IndexerConfig holds loop pacing and failure handling.
type IndexerConfig struct {
	Run             bool          `yaml:"run"`
	BatchCap        int           `yaml:"batch_cap"`
	IdleInterval    time.Duration `yaml:"idle_interval"`
	BatchDelay      time.Duration `yaml:"batch_delay"`
	FetchAttempts   int           `yaml:"fetch_attempts"`
	FetchRetryDelay time.Duration `yaml:"fetch_retry_delay"`
	OnError         string        `yaml:"on_error"`  // halt or retry
	GapStore        string        `yaml:"gap_store"` // none, postgres or redis
}

// SubscriptionConfig holds the slot probe settings.
type SubscriptionConfig struct {
	Mode           string        `yaml:"mode"`      // inline, background or disabled
	Transport      string        `yaml:"transport"` // websocket or geyser
	GeyserEndpoint string        `yaml:"geyser_endpoint"`
	GeyserToken    string        `yaml:"geyser_token"`
	BurstSize      int           `yaml:"burst_size"`
	Timeout        time.Duration `yaml:"timeout"`
	Interval       time.Duration `yaml:"interval"`
}

// ProgramsConfig holds the program watch-list. Empty tracks every program.
type ProgramsConfig struct {
	Targets []string `yaml:"targets"`
}

// Subscription transports.
const (
	TransportWebsocket = "websocket"
	TransportGeyser    = "geyser"
)

// Gap store values.
const (
	GapStoreNone     = "none"
	GapStorePostgres = "postgres"
	GapStoreRedis    = "redis"
)

// Commitment returns the parsed commitment. Call after Validate.
func (c *AppConfig) Commitment() domain.Commitment {
	cm, err := domain.ParseCommitment(c.Solana.Commitment)
	if err != nil {
		return domain.CommitmentFinalized
	}
	return cm
}

// TargetSet returns the program watch-list as a set.
func (c *AppConfig) TargetSet() domain.TargetProgramSet {
	return domain.NewTargetProgramSet(c.Programs.Targets...)
}

// LogLevel maps logging.level to a slog level.
func (c *AppConfig) LogLevel() slog.Level {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
