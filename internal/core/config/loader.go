package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"gopkg.in/yaml.v2"

	"github.com/vietddude/solwatch/internal/core/domain"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

const (
	defaultHTTPURL = "https://api.devnet.solana.com"
	defaultWSURL   = "wss://api.devnet.solana.com/"
)

// Load reads configuration from a YAML file, applies environment overrides and
// defaults, then validates. A missing file is not an error: the process can be
// configured from the environment alone.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Expand environment variables in the YAML content
		expandedData := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv lets the conventional process variables override the file.
func applyEnv(cfg *AppConfig) {
	if v, ok := os.LookupEnv("DATABASE_URL"); ok && v != "" {
		cfg.Database.URL = v
	}
	if v, ok := os.LookupEnv("SOLANA_HTTP_URL"); ok && v != "" {
		cfg.Solana.HTTPURL = v
	}
	if v, ok := os.LookupEnv("SOLANA_WS_URL"); ok && v != "" {
		cfg.Solana.WSURL = v
	}
	if v, ok := os.LookupEnv("GEYSER_TOKEN"); ok && v != "" {
		cfg.Subscription.GeyserToken = v
	}
	if v, ok := os.LookupEnv("COMMITMENT"); ok && v != "" {
		cfg.Solana.Commitment = v
	}
	if v, ok := os.LookupEnv("TARGET_PROGRAM_IDS"); ok && v != "" {
		cfg.Programs.Targets = splitList(v)
	}
	if v, ok := os.LookupEnv("RUN_INDEXER"); ok && v != "" {
		cfg.Indexer.Run = strings.TrimSpace(v) == "1"
	}
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}

	if cfg.Solana.HTTPURL == "" {
		cfg.Solana.HTTPURL = defaultHTTPURL
	}
	if cfg.Solana.WSURL == "" {
		cfg.Solana.WSURL = defaultWSURL
	}
	if cfg.Solana.Commitment == "" {
		cfg.Solana.Commitment = string(domain.CommitmentFinalized)
	}
	if cfg.Solana.RequestTimeout == 0 {
		cfg.Solana.RequestTimeout = 30 * time.Second
	}
	if cfg.Solana.BlockEncoding == "" {
		cfg.Solana.BlockEncoding = string(solanago.EncodingBase64)
	}

	if cfg.Indexer.BatchCap == 0 {
		cfg.Indexer.BatchCap = 20
	}
	if cfg.Indexer.IdleInterval == 0 {
		cfg.Indexer.IdleInterval = time.Second
	}
	if cfg.Indexer.BatchDelay == 0 {
		cfg.Indexer.BatchDelay = 200 * time.Millisecond
	}
	if cfg.Indexer.FetchAttempts == 0 {
		cfg.Indexer.FetchAttempts = 5
	}
	if cfg.Indexer.FetchRetryDelay == 0 {
		cfg.Indexer.FetchRetryDelay = 500 * time.Millisecond
	}
	if cfg.Indexer.OnError == "" {
		cfg.Indexer.OnError = "retry"
	}
	if cfg.Indexer.GapStore == "" {
		cfg.Indexer.GapStore = GapStorePostgres
	}

	if cfg.Subscription.Mode == "" {
		cfg.Subscription.Mode = "inline"
	}
	if cfg.Subscription.Transport == "" {
		cfg.Subscription.Transport = TransportWebsocket
	}
	if cfg.Subscription.BurstSize == 0 {
		cfg.Subscription.BurstSize = 5
	}
	if cfg.Subscription.Timeout == 0 {
		cfg.Subscription.Timeout = 10 * time.Second
	}
	if cfg.Subscription.Interval == 0 {
		cfg.Subscription.Interval = 30 * time.Second
	}
}

// Validate checks every field that would otherwise fail late at runtime.
func (c *AppConfig) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, err := domain.ParseCommitment(c.Solana.Commitment); err != nil {
		bad("solana.commitment: %v", err)
	}
	if !slices.Contains([]string{string(solanago.EncodingBase64), string(solanago.EncodingBase64Zstd)}, c.Solana.BlockEncoding) {
		bad("solana.block_encoding: must be base64 or base64+zstd, got %q", c.Solana.BlockEncoding)
	}
	if c.Indexer.BatchCap <= 0 {
		bad("indexer.batch_cap: must be positive, got %d", c.Indexer.BatchCap)
	}
	if c.Indexer.FetchAttempts <= 0 {
		bad("indexer.fetch_attempts: must be positive, got %d", c.Indexer.FetchAttempts)
	}
	if !slices.Contains([]string{"halt", "retry"}, strings.ToLower(c.Indexer.OnError)) {
		bad("indexer.on_error: must be halt or retry, got %q", c.Indexer.OnError)
	}
	if !slices.Contains([]string{GapStoreNone, GapStorePostgres, GapStoreRedis}, c.Indexer.GapStore) {
		bad("indexer.gap_store: must be none, postgres or redis, got %q", c.Indexer.GapStore)
	}
	if c.Indexer.GapStore == GapStoreRedis && c.Redis.URL == "" {
		bad("redis.url: required when indexer.gap_store is redis")
	}
	if !slices.Contains([]string{"inline", "background", "disabled"}, c.Subscription.Mode) {
		bad("subscription.mode: must be inline, background or disabled, got %q", c.Subscription.Mode)
	}
	if !slices.Contains([]string{TransportWebsocket, TransportGeyser}, c.Subscription.Transport) {
		bad("subscription.transport: must be websocket or geyser, got %q", c.Subscription.Transport)
	}
	if c.Subscription.Transport == TransportGeyser && c.Subscription.GeyserEndpoint == "" {
		bad("subscription.geyser_endpoint: required when subscription.transport is geyser")
	}
	if c.Subscription.BurstSize <= 0 {
		bad("subscription.burst_size: must be positive, got %d", c.Subscription.BurstSize)
	}
	for _, id := range c.Programs.Targets {
		if err := ValidateProgramID(id); err != nil {
			bad("programs.targets: %v", err)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// ValidateProgramID checks id is a base58 encoded 32 byte public key.
func ValidateProgramID(id string) error {
	if _, err := solanago.PublicKeyFromBase58(id); err != nil {
		return fmt.Errorf("program id %q: %w", id, err)
	}
	return nil
}
