package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreFile           = "file"
	StoreSQLite         = "sqlite"
	StorePostgres       = "postgres"
	StorePostgresNative = "postgres-native"
)

type StoreConfig struct {
	Backend      string
	DataFile     string
	SQLitePath   string
	DatabaseURL  string
	WriteTimeout time.Duration
}

type ServerConfig struct {
	Addr           string
	APIToken       string
	Store          StoreConfig
	PayoutEvery    time.Duration
	PayoutEnabled  bool
	PayoutOnStart  bool
	StartingWallet int64
	StartingIncome int64
	CatalogFile    string
	AdminRole      string
	CreatorRole    string
	DiscordToken   string
	KafkaBrokers   []string
	KafkaTopic     string
}

type WorkerConfig struct {
	Store        StoreConfig
	PayoutEvery  time.Duration
	RunOnce      bool
	KafkaBrokers []string
	KafkaTopic   string
}

type CLIConfig struct {
	APIBaseURL   string
	APIToken     string
	OwnerID      string
	Capabilities []string
}

// LoadDotEnv reads .env from the working directory when present. Variables
// already set in the environment win.
func LoadDotEnv() error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func LoadServerFromEnv() (ServerConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("NATIONS_API_ADDR", ":8080")
	}

	store, err := loadStore()
	cfg := ServerConfig{
		Addr:           addr,
		APIToken:       strings.TrimSpace(os.Getenv("NATIONS_API_TOKEN")),
		Store:          store,
		PayoutEvery:    envDurationDefault("NATIONS_PAYOUT_EVERY", 3*time.Hour),
		PayoutEnabled:  envBoolDefault("NATIONS_PAYOUT_ENABLED", true),
		PayoutOnStart:  envBoolDefault("NATIONS_PAYOUT_ON_START", false),
		StartingWallet: envIntDefault("NATIONS_STARTING_WALLET", 1000),
		StartingIncome: envIntDefault("NATIONS_STARTING_INCOME", 100),
		CatalogFile:    strings.TrimSpace(os.Getenv("NATIONS_CATALOG_FILE")),
		AdminRole:      envDefault("NATIONS_ADMIN_ROLE", "admin"),
		CreatorRole:    envDefault("NATIONS_CREATOR_ROLE", "President"),
		DiscordToken:   strings.TrimSpace(os.Getenv("DISCORD_BOT_TOKEN")),
		KafkaBrokers:   envList("NATIONS_KAFKA_BROKERS"),
		KafkaTopic:     envDefault("NATIONS_KAFKA_TOPIC", "nations.events"),
	}
	if err != nil {
		return cfg, err
	}
	if cfg.APIToken == "" {
		return cfg, fmt.Errorf("NATIONS_API_TOKEN is required")
	}
	if cfg.PayoutEvery <= 0 {
		return cfg, fmt.Errorf("NATIONS_PAYOUT_EVERY must be positive")
	}
	return cfg, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	store, err := loadStore()
	cfg := WorkerConfig{
		Store:        store,
		PayoutEvery:  envDurationDefault("NATIONS_PAYOUT_EVERY", 3*time.Hour),
		RunOnce:      envBoolDefault("NATIONS_WORKER_RUN_ONCE", false),
		KafkaBrokers: envList("NATIONS_KAFKA_BROKERS"),
		KafkaTopic:   envDefault("NATIONS_KAFKA_TOPIC", "nations.events"),
	}
	if err != nil {
		return cfg, err
	}
	// Only the postgres-native store locks across processes.
	if cfg.Store.Backend != StorePostgresNative {
		return cfg, fmt.Errorf("the worker requires NATIONS_STORE=%s, got %q", StorePostgresNative, cfg.Store.Backend)
	}
	if cfg.PayoutEvery <= 0 {
		return cfg, fmt.Errorf("NATIONS_PAYOUT_EVERY must be positive")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL:   strings.TrimRight(envDefault("NATIONS_API_BASE_URL", "http://localhost:8080"), "/"),
		APIToken:     strings.TrimSpace(os.Getenv("NATIONS_API_TOKEN")),
		OwnerID:      strings.TrimSpace(os.Getenv("NATIONS_OWNER_ID")),
		Capabilities: envList("NATIONS_CAPABILITIES"),
	}
}

func loadStore() (StoreConfig, error) {
	cfg := StoreConfig{
		Backend:      strings.ToLower(envDefault("NATIONS_STORE", StoreFile)),
		DataFile:     envDefault("NATIONS_DATA_FILE", "countries.json"),
		SQLitePath:   envDefault("NATIONS_SQLITE_PATH", "nations.sqlite"),
		DatabaseURL:  strings.TrimSpace(os.Getenv("DATABASE_URL")),
		WriteTimeout: envDurationDefault("NATIONS_STORE_WRITE_TIMEOUT", 5*time.Second),
	}
	switch cfg.Backend {
	case StoreFile, StoreSQLite:
	case StorePostgres, StorePostgresNative:
		if cfg.DatabaseURL == "" {
			return cfg, fmt.Errorf("DATABASE_URL is required for NATIONS_STORE=%s", cfg.Backend)
		}
	default:
		return cfg, fmt.Errorf("unknown NATIONS_STORE %q", cfg.Backend)
	}
	return cfg, nil
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envIntDefault(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
