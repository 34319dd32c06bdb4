package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/simaogato/pricesnap/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func missingEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	// Setup
	t.Setenv("COINS_MAP", "btc:bitcoin,ETH:ethereum")

	// Execute
	cfg, err := Load(LoadOptions{EnvFile: missingEnvFile(t)})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.BackfillDays)
	assert.Equal(t, "eur", cfg.Provider.VsCurrency)
	assert.Equal(t, 1200*time.Millisecond, cfg.Provider.MinInterval)
	assert.Equal(t, 3, cfg.Provider.MaxRetries)
	assert.Equal(t, 50, cfg.Provider.BatchSize)
	assert.Equal(t, 8, cfg.Ledger.HeadSkip)
	assert.Equal(t, 4, cfg.Ledger.TailSkip)
	assert.Equal(t, domain.ConflictOverwrite, cfg.SnapshotConflict)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "EUR", cfg.Report.Currency)
	assert.Equal(t, domain.CoinMapping{"btc": "bitcoin", "eth": "ethereum"}, cfg.Coins)
	assert.NoError(t, cfg.RequireCoins())
}

func TestLoad_EnvFileAndOverrides(t *testing.T) {
	// Setup
	envFile := writeFile(t, ".env", "COINS_MAP=sol:solana\nBACKFILL_DAYS=7\nSNAPSHOT_CONFLICT=skip\n")
	t.Setenv("PROVIDER_VS_CURRENCY", "USD")

	// Execute
	cfg, err := Load(LoadOptions{EnvFile: envFile})
	t.Cleanup(func() {
		os.Unsetenv("COINS_MAP")
		os.Unsetenv("BACKFILL_DAYS")
		os.Unsetenv("SNAPSHOT_CONFLICT")
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.BackfillDays)
	assert.Equal(t, "usd", cfg.Provider.VsCurrency)
	assert.Equal(t, domain.ConflictSkip, cfg.SnapshotConflict)
	assert.Equal(t, "solana", cfg.Coins["sol"])
}

func TestLoad_YAMLConfigFile(t *testing.T) {
	// Setup
	file := writeFile(t, "pricesnap.yaml", "backfill_days: 14\nreport_dir: out\nprovider_batch_size: 10\n")
	t.Setenv("REPORT_DIR", "from-env")

	// Execute
	cfg, err := Load(LoadOptions{EnvFile: missingEnvFile(t), ConfigFile: file})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 14, cfg.BackfillDays)
	assert.Equal(t, 10, cfg.Provider.BatchSize)
	assert.Equal(t, "from-env", cfg.Report.Dir, "environment wins over the YAML file")
}

func TestLoad_CoinsMapFile(t *testing.T) {
	// Setup
	file := writeFile(t, "coins.yaml", "coins:\n  BTC: bitcoin\n  eth: ethereum\n")
	t.Setenv("COINS_MAP_FILE", file)
	t.Setenv("COINS_MAP", "eth:ethereum-classic")

	// Execute
	cfg, err := Load(LoadOptions{EnvFile: missingEnvFile(t)})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "bitcoin", cfg.Coins["btc"])
	assert.Equal(t, "ethereum-classic", cfg.Coins["eth"], "inline mapping wins over the file")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown conflict policy", "SNAPSHOT_CONFLICT", "merge"},
		{"empty provider url", "PROVIDER_BASE_URL", " "},
		{"zero window", "BACKFILL_DAYS", "0"},
		{"unknown driver", "DB_DRIVER", "mysql"},
		{"bad coins map", "COINS_MAP", "btc:"},
		{"negative retries", "PROVIDER_MAX_RETRIES", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			t.Setenv(tt.key, tt.val)

			// Execute
			cfg, err := Load(LoadOptions{EnvFile: missingEnvFile(t)})

			// Assert
			assert.Nil(t, cfg)
			var cerr *domain.ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.key, cerr.Key)
		})
	}
}

func TestConfig_RequireCoinsAndLedger(t *testing.T) {
	cfg := &Config{}

	var cerr *domain.ConfigError
	require.ErrorAs(t, cfg.RequireCoins(), &cerr)
	assert.Equal(t, "COINS_MAP", cerr.Key)
	require.ErrorAs(t, cfg.RequireLedger(), &cerr)
	assert.Equal(t, "LEDGER_CSV", cerr.Key)

	cfg.Ledger.Path = "ledger.csv"
	assert.NoError(t, cfg.RequireLedger())
}

func TestDatabaseConfig_DSN(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: "5433", User: "u", Password: "p", Name: "n"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=n sslmode=disable", pg.DSN())

	pg.ConnString = "postgres://x"
	assert.Equal(t, "postgres://x", pg.DSN())

	lite := DatabaseConfig{Driver: "sqlite", SQLitePath: "data/p.db", ConnString: "ignored"}
	assert.Equal(t, "data/p.db", lite.DSN())
}
