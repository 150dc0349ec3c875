package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "auctionhouse.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadConfig_FileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
  max_workers: 16
  read_timeout: 3s
redis:
  addr: "redis:6379"
notifications:
  backend: nats
  nats_url: nats://nats:4222
advisor:
  url: http://advisor/review
  timeout: 2s
`)
	t.Setenv("AUCTIONHOUSE_CONFIG", path)
	t.Setenv("MAX_WORKERS", "32")
	t.Setenv("DATABASE_URL", "postgres://localhost/auctions")
	t.Setenv("VSOCK_PORT", "5000")

	cfg, err := LoadConfig()
	assert.NoError(t, err)

	check.Equal(t, ":9090", cfg.Server.Addr)
	check.Equal(t, 32, cfg.Server.MaxWorkers)
	check.Equal(t, uint32(5000), cfg.Server.VsockPort)
	check.Equal(t, 3*time.Second, cfg.Server.ReadTimeout)
	check.Equal(t, 10*time.Second, cfg.Server.WriteTimeout) // default kept
	check.Equal(t, "postgres://localhost/auctions", cfg.Database.URL)
	check.Equal(t, "redis:6379", cfg.Redis.Addr)
	check.Equal(t, "nats", cfg.Notifications.Backend)
	check.Equal(t, "http://advisor/review", cfg.Advisor.URL)
	check.Equal(t, 2*time.Second, cfg.Advisor.Timeout)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name     string
		contents string
		env      map[string]string
	}{
		{name: "unknown field", contents: "server:\n  port: 80\n"},
		{name: "bad max workers env", contents: "", env: map[string]string{"MAX_WORKERS": "many"}},
		{name: "zero max workers", contents: "server:\n  max_workers: 0\n"},
		{name: "unknown backend", contents: "notifications:\n  backend: carrier-pigeon\n"},
		{name: "amqp without url", contents: "notifications:\n  backend: amqp\n"},
		{name: "bad attest flag", contents: "", env: map[string]string{"ENCLAVE_ATTEST": "sometimes"}},
		{name: "negative vsock port", contents: "", env: map[string]string{"VSOCK_PORT": "-1"}},
		{name: "vsock port above 32 bits", contents: "", env: map[string]string{"VSOCK_PORT": "4294967296"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AUCTIONHOUSE_CONFIG", writeConfig(t, tt.contents))
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			_, err := LoadConfig()
			check.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	t.Setenv("AUCTIONHOUSE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := LoadConfig()
	check.Error(t, err)
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("AUCTIONHOUSE_TEST_INT", "")
	value, err := getEnvInt("AUCTIONHOUSE_TEST_INT", 7)
	assert.NoError(t, err)
	check.Equal(t, 7, value)

	t.Setenv("AUCTIONHOUSE_TEST_INT", "42")
	value, err = getEnvInt("AUCTIONHOUSE_TEST_INT", 7)
	assert.NoError(t, err)
	check.Equal(t, 42, value)

	t.Setenv("AUCTIONHOUSE_TEST_INT", "4.2")
	_, err = getEnvInt("AUCTIONHOUSE_TEST_INT", 7)
	check.Error(t, err)
}
