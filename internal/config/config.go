package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/simaogato/pricesnap/internal/domain"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the explicit configuration handed to every component at construction
type Config struct {
	Coins            domain.CoinMapping
	Ledger           LedgerConfig
	Provider         ProviderConfig
	BackfillDays     int
	SnapshotConflict domain.ConflictPolicy
	Database         DatabaseConfig
	Report           ReportConfig
	Log              LogConfig
	Serve            ServeConfig
}

// LedgerConfig locates the ledger export and describes its layout
type LedgerConfig struct {
	Path        string
	HeadSkip    int
	TailSkip    int
	HeaderRow   int
	Columns     string
	CleanOutput string
}

// ProviderConfig holds the price provider connection and request pacing
type ProviderConfig struct {
	BaseURL        string
	APIKey         string
	APIKeyHeader   string
	APIKeySecretID string
	AWSRegion      string
	VsCurrency     string
	MinInterval    time.Duration
	Burst          int
	MaxRetries     int
	Backoff        time.Duration
	Timeout        time.Duration
	BatchSize      int
}

// DatabaseConfig selects the store driver and its connection settings
type DatabaseConfig struct {
	Driver     string
	ConnString string
	Host       string
	Port       string
	User       string
	Password   string
	Name       string
	SQLitePath string
}

// ReportConfig sets the report currency and export directory
type ReportConfig struct {
	Dir      string
	Currency string
}

// LogConfig configures the process logger
type LogConfig struct {
	Level  string
	Format string
	File   string
}

// ServeConfig configures the read API and the scheduled pipeline
type ServeConfig struct {
	APIToken string
	GRPCAddr string
	HTTPAddr string
	Cron     string
}

// LoadOptions locates the optional configuration files
type LoadOptions struct {
	EnvFile    string // defaults to ".env"; a missing file is ignored
	ConfigFile string // optional YAML file, overridden by the environment
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("BACKFILL_DAYS", 30)
	v.SetDefault("PROVIDER_BASE_URL", "https://api.coingecko.com/api/v3")
	v.SetDefault("PROVIDER_API_KEY_HEADER", "x-cg-demo-api-key")
	v.SetDefault("PROVIDER_VS_CURRENCY", "eur")
	v.SetDefault("PROVIDER_MIN_INTERVAL", "1.2s")
	v.SetDefault("PROVIDER_BURST", 1)
	v.SetDefault("PROVIDER_MAX_RETRIES", 3)
	v.SetDefault("PROVIDER_BACKOFF", "2s")
	v.SetDefault("PROVIDER_TIMEOUT", "30s")
	v.SetDefault("PROVIDER_BATCH_SIZE", 50)
	v.SetDefault("LEDGER_HEAD_SKIP", 8)
	v.SetDefault("LEDGER_TAIL_SKIP", 4)
	v.SetDefault("LEDGER_HEADER_ROW", 0)
	v.SetDefault("SNAPSHOT_CONFLICT", string(domain.ConflictOverwrite))
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "pricesnap")
	v.SetDefault("SQLITE_PATH", "data/pricesnap.db")
	v.SetDefault("REPORT_DIR", "reports")
	v.SetDefault("REPORT_CURRENCY", "EUR")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("API_TOKEN", "dev-token")
	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("HTTP_ADDR", ":8081")
	v.SetDefault("SCHEDULE_CRON", "0 6 * * *")
}

// Load reads .env, the optional YAML file and the environment into a Config.
// Invalid values are reported as *domain.ConfigError.
func Load(opts LoadOptions) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &domain.ConfigError{Key: envFile, Err: err}
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, &domain.ConfigError{Key: opts.ConfigFile, Err: err}
		}
	}

	cfg := &Config{
		Ledger: LedgerConfig{
			Path:        v.GetString("LEDGER_CSV"),
			HeadSkip:    v.GetInt("LEDGER_HEAD_SKIP"),
			TailSkip:    v.GetInt("LEDGER_TAIL_SKIP"),
			HeaderRow:   v.GetInt("LEDGER_HEADER_ROW"),
			Columns:     v.GetString("LEDGER_COLUMNS"),
			CleanOutput: v.GetString("LEDGER_CLEAN_OUTPUT"),
		},
		Provider: ProviderConfig{
			BaseURL:        strings.TrimSpace(v.GetString("PROVIDER_BASE_URL")),
			APIKey:         v.GetString("PROVIDER_API_KEY"),
			APIKeyHeader:   v.GetString("PROVIDER_API_KEY_HEADER"),
			APIKeySecretID: v.GetString("PROVIDER_API_KEY_SECRET_ID"),
			AWSRegion:      v.GetString("AWS_REGION"),
			VsCurrency:     strings.ToLower(v.GetString("PROVIDER_VS_CURRENCY")),
			MinInterval:    v.GetDuration("PROVIDER_MIN_INTERVAL"),
			Burst:          v.GetInt("PROVIDER_BURST"),
			MaxRetries:     v.GetInt("PROVIDER_MAX_RETRIES"),
			Backoff:        v.GetDuration("PROVIDER_BACKOFF"),
			Timeout:        v.GetDuration("PROVIDER_TIMEOUT"),
			BatchSize:      v.GetInt("PROVIDER_BATCH_SIZE"),
		},
		BackfillDays: v.GetInt("BACKFILL_DAYS"),
		Database: DatabaseConfig{
			Driver:     strings.ToLower(v.GetString("DB_DRIVER")),
			ConnString: v.GetString("DB_CONN_STR"),
			Host:       v.GetString("DB_HOST"),
			Port:       v.GetString("DB_PORT"),
			User:       v.GetString("DB_USER"),
			Password:   v.GetString("DB_PASSWORD"),
			Name:       v.GetString("DB_NAME"),
			SQLitePath: v.GetString("SQLITE_PATH"),
		},
		Report: ReportConfig{
			Dir:      v.GetString("REPORT_DIR"),
			Currency: strings.ToUpper(v.GetString("REPORT_CURRENCY")),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
			File:   v.GetString("LOG_FILE"),
		},
		Serve: ServeConfig{
			APIToken: v.GetString("API_TOKEN"),
			GRPCAddr: v.GetString("GRPC_ADDR"),
			HTTPAddr: v.GetString("HTTP_ADDR"),
			Cron:     v.GetString("SCHEDULE_CRON"),
		},
	}

	policy, err := domain.ParseConflictPolicy(strings.ToLower(v.GetString("SNAPSHOT_CONFLICT")))
	if err != nil {
		return nil, &domain.ConfigError{Key: "SNAPSHOT_CONFLICT", Err: err}
	}
	cfg.SnapshotConflict = policy

	if cfg.Coins, err = loadCoins(v.GetString("COINS_MAP"), v.GetString("COINS_MAP_FILE")); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Provider.BaseURL == "":
		return &domain.ConfigError{Key: "PROVIDER_BASE_URL", Err: errors.New("must not be empty")}
	case c.Provider.VsCurrency == "":
		return &domain.ConfigError{Key: "PROVIDER_VS_CURRENCY", Err: errors.New("must not be empty")}
	case c.BackfillDays < 1:
		return &domain.ConfigError{Key: "BACKFILL_DAYS", Err: fmt.Errorf("must be at least 1, got %d", c.BackfillDays)}
	case c.Ledger.HeadSkip < 0:
		return &domain.ConfigError{Key: "LEDGER_HEAD_SKIP", Err: errors.New("must not be negative")}
	case c.Ledger.TailSkip < 0:
		return &domain.ConfigError{Key: "LEDGER_TAIL_SKIP", Err: errors.New("must not be negative")}
	case c.Ledger.HeaderRow < 0 || (c.Ledger.HeaderRow > 0 && c.Ledger.HeaderRow > c.Ledger.HeadSkip):
		return &domain.ConfigError{Key: "LEDGER_HEADER_ROW", Err: errors.New("must point inside the discarded head rows")}
	case c.Provider.MaxRetries < 0:
		return &domain.ConfigError{Key: "PROVIDER_MAX_RETRIES", Err: errors.New("must not be negative")}
	case c.Provider.BatchSize < 1:
		return &domain.ConfigError{Key: "PROVIDER_BATCH_SIZE", Err: errors.New("must be at least 1")}
	case c.Database.Driver != "sqlite" && c.Database.Driver != "postgres":
		return &domain.ConfigError{Key: "DB_DRIVER", Err: fmt.Errorf("unsupported driver %q", c.Database.Driver)}
	}
	return nil
}

// RequireCoins fails when no coin mapping was configured
func (c *Config) RequireCoins() error {
	if len(c.Coins) == 0 {
		return &domain.ConfigError{Key: "COINS_MAP", Err: errors.New("no coin mapping configured (set COINS_MAP or COINS_MAP_FILE)")}
	}
	return nil
}

// RequireLedger fails when no ledger export path was configured
func (c *Config) RequireLedger() error {
	if strings.TrimSpace(c.Ledger.Path) == "" {
		return &domain.ConfigError{Key: "LEDGER_CSV", Err: errors.New("ledger export path is required")}
	}
	return nil
}

// DSN returns the connection string of the configured driver.
// For postgres an explicit DB_CONN_STR wins over the individual DB_* values.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.SQLitePath
	}
	if d.ConnString != "" {
		return d.ConnString
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Name)
}

// EnsureSQLiteDir creates the parent directory of the SQLite file
func (d DatabaseConfig) EnsureSQLiteDir() error {
	if d.Driver != "sqlite" || d.SQLitePath == ":memory:" {
		return nil
	}
	if dir := filepath.Dir(d.SQLitePath); dir != "." {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}

type coinsFile struct {
	Coins map[string]string `yaml:"coins"`
}

// loadCoins merges the inline COINS_MAP notation over the YAML mapping file
func loadCoins(inline, file string) (domain.CoinMapping, error) {
	coins := make(domain.CoinMapping)

	if file != "" {
		raw, err := os.ReadFile(filepath.Clean(file))
		if err != nil {
			return nil, &domain.ConfigError{Key: "COINS_MAP_FILE", Err: err}
		}
		var doc coinsFile
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, &domain.ConfigError{Key: "COINS_MAP_FILE", Err: err}
		}
		for symbol, id := range doc.Coins {
			key, id := domain.NormalizeSymbol(symbol), strings.TrimSpace(id)
			if key == "" || id == "" {
				return nil, &domain.ConfigError{Key: "COINS_MAP_FILE", Err: fmt.Errorf("invalid mapping %q: %q", symbol, id)}
			}
			coins[key] = id
		}
	}

	if strings.TrimSpace(inline) != "" {
		parsed, err := domain.ParseCoinsMap(inline)
		if err != nil {
			return nil, &domain.ConfigError{Key: "COINS_MAP", Err: err}
		}
		for symbol, id := range parsed {
			coins[symbol] = id
		}
	}

	return coins, nil
}
