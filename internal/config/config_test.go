package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"DB_HOST", "DB_PORT", "SERVER_PORT", "ACCOUNT_SERVICE_URL", "ACCOUNT_SERVICE_TIMEOUT",
		"RECONCILE_INTERVAL", "RECONCILE_STUCK_AFTER", "RECONCILE_BATCH_SIZE",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "localhost", cfg.DBHost)
	assert.Equal(t, "5432", cfg.DBPort)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 5*time.Second, cfg.AccountServiceTimeout)
	assert.Equal(t, 5*time.Minute, cfg.ReconcileStuckAfter)
	assert.Equal(t, 100, cfg.ReconcileBatchSize)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ACCOUNT_SERVICE_URL", "http://accounts:8081")
	t.Setenv("ACCOUNT_SERVICE_TIMEOUT", "750ms")
	t.Setenv("RECONCILE_BATCH_SIZE", "25")

	cfg := Load()
	assert.Equal(t, "db.internal", cfg.DBHost)
	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, "http://accounts:8081", cfg.AccountServiceURL)
	assert.Equal(t, 750*time.Millisecond, cfg.AccountServiceTimeout)
	assert.Equal(t, 25, cfg.ReconcileBatchSize)
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("RECONCILE_INTERVAL", "soon")
	t.Setenv("RECONCILE_BATCH_SIZE", "-3")

	cfg := Load()
	assert.Equal(t, 30*time.Second, cfg.ReconcileInterval)
	assert.Equal(t, 100, cfg.ReconcileBatchSize)
}

func TestGetDBConnectionString(t *testing.T) {
	cfg := &Config{DBHost: "h", DBPort: "1", DBUser: "u", DBPassword: "p", DBName: "n"}
	assert.Equal(t, "host=h port=1 user=u password=p dbname=n sslmode=disable", cfg.GetDBConnectionString())
}
