// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/jaylee/stocklab-trader/internal/domain"
)

// KISCredentials holds one environment's broker credential set. Demo and real
// credentials never mix within a process; Load picks exactly one set based on
// TRADING_MODE.
type KISCredentials struct {
	AppKey    string
	AppSecret string
	AccountNo string // CANO + product code, "XXXXXXXX-XX"
}

// Config holds application configuration. TRADING_MODE is immutable for the
// process lifetime.
type Config struct {
	Mode        domain.TradeMode
	AutoTrading bool

	// Per-order budgets in each market's native currency.
	UnitAmountKRW int64
	UnitAmountUSD float64

	// Portfolio admission limits.
	MaxPositions        int
	MaxPositionsSector  int
	SectorConcentration float64

	// Coordinator bounds.
	GlobalConcurrency int
	OperationTimeout  time.Duration

	// Replay scheduler.
	PollInterval time.Duration

	// Pub/sub subscription.
	PubSubProjectID       string
	PubSubSubscriptionID  string
	PubSubCredentialsPath string

	// Broker credentials for the active mode. Empty in dry-run.
	KIS KISCredentials

	WebhookURLs []string

	DataDir   string
	LogLevel  string
	LogPretty bool

	ServerHost string
	ServerPort int

	ExtraHolidaysKR []string // YYYY-MM-DD
	ExtraHolidaysUS []string

	MaintenanceCron     string
	BackupEnabled       bool
	BackupCron          string
	BackupDir           string
	BackupRetentionDays int
	DailySummaryCron    string

	// S3-compatible backup target; empty endpoint disables remote upload.
	S3Endpoint        string
	S3Region          string
	S3Bucket          string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// Load reads configuration from environment variables, loading .env first if
// one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	mode := domain.TradeMode(strings.ToLower(getEnv("TRADING_MODE", string(domain.ModeDemo))))

	cfg := &Config{
		Mode:        mode,
		AutoTrading: getEnvAsBool("AUTO_TRADING", false),

		UnitAmountKRW: int64(getEnvAsInt("UNIT_AMOUNT_KRW", 300000)),
		UnitAmountUSD: getEnvAsFloat("UNIT_AMOUNT_USD", 200),

		MaxPositions:        getEnvAsInt("MAX_POSITIONS", 10),
		MaxPositionsSector:  getEnvAsInt("MAX_POSITIONS_PER_SECTOR", 2),
		SectorConcentration: getEnvAsFloat("SECTOR_CONCENTRATION_LIMIT", 0.4),

		GlobalConcurrency: getEnvAsInt("COORDINATOR_GLOBAL_CONCURRENCY", 3),
		OperationTimeout:  time.Duration(getEnvAsInt("COORDINATOR_TIMEOUT_SECONDS", 30)) * time.Second,

		PollInterval: time.Duration(getEnvAsInt("SCHEDULER_POLL_INTERVAL_SECONDS", 60)) * time.Second,

		PubSubProjectID:       getEnv("PUBSUB_PROJECT_ID", ""),
		PubSubSubscriptionID:  getEnv("PUBSUB_SUBSCRIPTION_ID", ""),
		PubSubCredentialsPath: getEnv("PUBSUB_CREDENTIALS_PATH", ""),

		WebhookURLs: splitAndTrim(getEnv("WEBHOOK_URLS", "")),

		DataDir:   absDataDir,
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", false),

		ServerHost: getEnv("SERVER_HOST", "127.0.0.1"),
		ServerPort: getEnvAsInt("SERVER_PORT", 8787),

		ExtraHolidaysKR: splitAndTrim(getEnv("CALENDAR_EXTRA_HOLIDAYS_KR", "")),
		ExtraHolidaysUS: splitAndTrim(getEnv("CALENDAR_EXTRA_HOLIDAYS_US", "")),

		MaintenanceCron:     getEnv("MAINTENANCE_CRON", "0 2 * * *"),
		BackupEnabled:       getEnvAsBool("BACKUP_ENABLED", false),
		BackupCron:          getEnv("BACKUP_CRON", "30 2 * * *"),
		BackupDir:           getEnv("BACKUP_DIR", filepath.Join(absDataDir, "backups")),
		BackupRetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		DailySummaryCron:    getEnv("DAILY_SUMMARY_CRON", "CRON_TZ=Asia/Seoul 40 15 * * 1-5"),

		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3Region:          getEnv("S3_REGION", "auto"),
		S3Bucket:          getEnv("S3_BUCKET", ""),
		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
	}

	switch mode {
	case domain.ModeReal:
		cfg.KIS = KISCredentials{
			AppKey:    getEnv("KIS_REAL_APP_KEY", ""),
			AppSecret: getEnv("KIS_REAL_APP_SECRET", ""),
			AccountNo: getEnv("KIS_REAL_ACCOUNT_NO", ""),
		}
	case domain.ModeDemo:
		cfg.KIS = KISCredentials{
			AppKey:    getEnv("KIS_DEMO_APP_KEY", ""),
			AppSecret: getEnv("KIS_DEMO_APP_SECRET", ""),
			AccountNo: getEnv("KIS_DEMO_ACCOUNT_NO", ""),
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present for the selected
// mode. Dry-run needs neither broker credentials nor a bus subscription.
func (c *Config) Validate() error {
	if !c.Mode.Valid() {
		return fmt.Errorf("invalid TRADING_MODE %q (want demo, real or dry-run)", c.Mode)
	}

	if c.GlobalConcurrency < 1 {
		return fmt.Errorf("COORDINATOR_GLOBAL_CONCURRENCY must be >= 1, got %d", c.GlobalConcurrency)
	}
	if c.OperationTimeout <= 0 {
		return fmt.Errorf("COORDINATOR_TIMEOUT_SECONDS must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("SCHEDULER_POLL_INTERVAL_SECONDS must be positive")
	}
	if c.MaxPositions < 1 {
		return fmt.Errorf("MAX_POSITIONS must be >= 1, got %d", c.MaxPositions)
	}
	if c.SectorConcentration <= 0 || c.SectorConcentration > 1 {
		return fmt.Errorf("SECTOR_CONCENTRATION_LIMIT must be in (0, 1], got %v", c.SectorConcentration)
	}

	if c.Mode == domain.ModeDryRun {
		return nil
	}

	if c.KIS.AppKey == "" || c.KIS.AppSecret == "" || c.KIS.AccountNo == "" {
		return fmt.Errorf("KIS credentials required for %s mode", c.Mode)
	}
	if !strings.Contains(c.KIS.AccountNo, "-") {
		return fmt.Errorf("KIS account number must be CANO-PRDT format, got %q", c.KIS.AccountNo)
	}
	if c.PubSubProjectID == "" || c.PubSubSubscriptionID == "" {
		return fmt.Errorf("PUBSUB_PROJECT_ID and PUBSUB_SUBSCRIPTION_ID required for %s mode", c.Mode)
	}

	return nil
}

// AccountParts splits the configured account number into CANO and product
// code as the order API expects them.
func (c *KISCredentials) AccountParts() (cano, product string) {
	parts := strings.SplitN(c.AccountNo, "-", 2)
	if len(parts) != 2 {
		return c.AccountNo, ""
	}
	return parts[0], parts[1]
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
