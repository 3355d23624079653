package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"PORT", "STORE_DRIVER", "SQLITE_PATH", "DATABASE_URL", "REDIS_ADDR", "REDIS_PASSWORD",
		"REDIS_DB", "REPORT_CACHE_TTL", "AUDIT_INTERVAL", "ALLOWED_ORIGINS", "STATION_TIMEZONE"} {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := FromEnv()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "station.db", cfg.SQLitePath)
	assert.Equal(t, 5*time.Minute, cfg.ReportCacheTTL)
	assert.Equal(t, time.Hour, cfg.AuditInterval)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.AllowedOrigins)
	assert.Equal(t, ":8080", cfg.Address())
	require.NoError(t, cfg.Validate())
}

func TestFromEnv_DatabaseURLSelectsPostgres(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://station@localhost/station")

	cfg := FromEnv()

	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	require.NoError(t, cfg.Validate())
}

func TestFromEnv_ExplicitDriverWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://station@localhost/station")
	t.Setenv("STORE_DRIVER", "Memory")

	assert.Equal(t, DriverMemory, FromEnv().StoreDriver)
}

func TestFromEnv_BadValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "eighty")
	t.Setenv("REPORT_CACHE_TTL", "-1s")
	t.Setenv("AUDIT_INTERVAL", "0")
	t.Setenv("ALLOWED_ORIGINS", " https://office.example.lk , ,")

	cfg := FromEnv()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.ReportCacheTTL)
	assert.Equal(t, time.Duration(0), cfg.AuditInterval, "zero disables the scheduler")
	assert.Equal(t, []string{"https://office.example.lk"}, cfg.AllowedOrigins)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{StoreDriver: DriverMemory, Timezone: "UTC"}, false},
		{"postgres without url", Config{StoreDriver: DriverPostgres, Timezone: "UTC"}, true},
		{"unknown driver", Config{StoreDriver: "mongo", Timezone: "UTC"}, true},
		{"bad timezone", Config{StoreDriver: DriverMemory, Timezone: "Mars/Olympus"}, true},
		{"colombo", Config{StoreDriver: DriverSQLite, Timezone: "Asia/Colombo"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
