package config

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all process configuration. Correlation tuning lives in the
// policy file, see LoadPolicy.
type Config struct {
	Addr       string
	GRPCAddr   string
	DBPath     string
	OUIDBPath  string
	PolicyPath string
	NATSURL    string
	RedisAddr  string
	ExplainURL string

	MaxPendingWrites int
	RequestsPerMin   int
	RiskTTL          time.Duration

	WatchPolicy bool
	TracePretty bool
	Debug       bool
}

// Load parses command line flags and environment variables to populate Config.
// Flags take precedence over environment variables.
func Load() *Config {
	return LoadArgs(flag.CommandLine, os.Args[1:])
}

// LoadArgs is Load over an explicit flag set and argument list.
func LoadArgs(fs *flag.FlagSet, args []string) *Config {
	cfg := &Config{}

	cfg.Addr = getEnv("MIDS_ADDR", ":8080")
	cfg.GRPCAddr = getEnv("MIDS_GRPC_ADDR", ":9000")
	cfg.DBPath = getEnv("MIDS_DB", getDefaultDBPath())
	cfg.OUIDBPath = getEnv("MIDS_OUI_DB", "")
	cfg.PolicyPath = getEnv("MIDS_POLICY", "")
	cfg.NATSURL = getEnv("MIDS_NATS_URL", "")
	cfg.RedisAddr = getEnv("MIDS_REDIS_ADDR", "")
	cfg.ExplainURL = getEnv("MIDS_EXPLAIN_URL", "")
	cfg.MaxPendingWrites = getEnvInt("MIDS_MAX_PENDING_WRITES", 10000)
	cfg.RequestsPerMin = getEnvInt("MIDS_RATE_LIMIT", 600)
	cfg.RiskTTL = getEnvDuration("MIDS_RISK_TTL", 10*time.Minute)
	cfg.WatchPolicy = getEnvBool("MIDS_WATCH_POLICY", true)
	cfg.Debug = getEnvBool("MIDS_DEBUG", false)

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP server address")
	fs.StringVar(&cfg.GRPCAddr, "grpc", cfg.GRPCAddr, "gRPC ingestion address (empty to disable)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to SQLite database")
	fs.StringVar(&cfg.OUIDBPath, "oui-db", cfg.OUIDBPath, "Path to OUI vendor database (empty to disable enrichment)")
	fs.StringVar(&cfg.PolicyPath, "policy", cfg.PolicyPath, "Path to YAML policy file (empty for built-in defaults)")
	fs.StringVar(&cfg.NATSURL, "nats", cfg.NATSURL, "NATS server URL (empty to disable)")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address for risk snapshots (empty to disable)")
	fs.StringVar(&cfg.ExplainURL, "explain-url", cfg.ExplainURL, "Enrichment service endpoint (empty to disable)")
	fs.IntVar(&cfg.MaxPendingWrites, "max-pending-writes", cfg.MaxPendingWrites, "Store writes buffered while the database is failing")
	fs.IntVar(&cfg.RequestsPerMin, "rate-limit", cfg.RequestsPerMin, "HTTP requests per minute per client")
	fs.DurationVar(&cfg.RiskTTL, "risk-ttl", cfg.RiskTTL, "Expiry of cached risk snapshots")
	fs.BoolVar(&cfg.WatchPolicy, "watch-policy", cfg.WatchPolicy, "Reload the policy file when it changes")
	fs.BoolVar(&cfg.TracePretty, "trace-pretty", false, "Pretty-print trace spans")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable verbose debug logging")

	_ = fs.Parse(args)
	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// getDefaultDBPath returns ~/.mids/mids.db, creating the directory if needed.
func getDefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		slog.Warn("could not get user home directory, using current dir", "error", err)
		return "mids.db"
	}

	dir := filepath.Join(home, ".mids")
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Warn("could not create .mids directory, using current dir", "error", err)
		return "mids.db"
	}

	return filepath.Join(dir, "mids.db")
}
