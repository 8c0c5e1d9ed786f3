package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoad(t *testing.T) {
	t.Run("reads .env and applies defaults", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, ".env", "RUNNING_SERVICE=customer_service\nINTERNAL_TOKEN=secret\nPORT=8001\n")

		cfg, err := Load(dir, discardLogger())
		require.NoError(t, err)

		assert.Equal(t, "customer_service", cfg.Service)
		assert.Equal(t, "secret", cfg.InternalToken)
		assert.Equal(t, 8001, cfg.Port)
		assert.Equal(t, ":8001", cfg.Addr())
		assert.Equal(t, BrokerRabbitMQ, cfg.Broker)
		assert.Equal(t, 20*time.Second, cfg.Shutdown.Timeout)
		assert.Equal(t, 2*time.Second, cfg.Shutdown.SettleDelay)
		assert.Equal(t, 30*time.Second, cfg.Correlation.Timeout)
		assert.Equal(t, 10, cfg.RabbitMQ.MaxRetries)
		assert.Equal(t, 2*time.Second, cfg.Redis.ReconnectDelay)
		assert.Equal(t, "customer", cfg.Mongo.Database)
		assert.Equal(t, 7*24*time.Hour, cfg.TokenTTL)
		assert.Equal(t, BreakerConfig{Failures: 5, OpenTimeout: 30 * time.Second, Probes: 1}, cfg.SyncBreaker)
		assert.True(t, cfg.SyncBreaker.Enabled())
	})

	t.Run("sync breaker keys", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, ".env", "RUNNING_SERVICE=product_service\nINTERNAL_TOKEN=secret\nSYNC_BREAKER_FAILURES=0\nSYNC_BREAKER_TIMEOUT=5s\nSYNC_BREAKER_PROBES=2\n")

		cfg, err := Load(dir, discardLogger())
		require.NoError(t, err)

		assert.Equal(t, BreakerConfig{Failures: 0, OpenTimeout: 5 * time.Second, Probes: 2}, cfg.SyncBreaker)
		assert.False(t, cfg.SyncBreaker.Enabled())
	})

	t.Run("kafka defaults", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, ".env", "RUNNING_SERVICE=product_service\nINTERNAL_TOKEN=secret\nBROKER=kafka\nKAFKA_BROKERS=k1:9092, k2:9092\n")

		cfg, err := Load(dir, discardLogger())
		require.NoError(t, err)

		assert.Equal(t, BrokerKafka, cfg.Broker)
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
		assert.Equal(t, int32(2), cfg.Kafka.Partitions)
		assert.Equal(t, int16(1), cfg.Kafka.Replication)
		assert.Equal(t, int64(1800000), cfg.Kafka.RetentionMs)
		assert.Equal(t, "delete", cfg.Kafka.CleanupPolicy)
		assert.Equal(t, 10*time.Second, cfg.Kafka.SettleDelay)
		assert.Equal(t, 90*time.Second, cfg.Kafka.SessionTimeout)
		assert.Equal(t, 10*time.Second, cfg.Kafka.HeartbeatInterval)
		assert.Equal(t, 100*time.Second, cfg.Kafka.RebalanceTimeout)
		assert.Equal(t, "local", cfg.Kafka.GroupID)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, ".env", "RUNNING_SERVICE=customer_service\nINTERNAL_TOKEN=from-file\n")
		t.Setenv("INTERNAL_TOKEN", "from-env")

		cfg, err := Load(dir, discardLogger())
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.InternalToken)
	})

	t.Run("APP_ENV file is merged", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, ".env", "RUNNING_SERVICE=customer_service\nINTERNAL_TOKEN=secret\nAPP_ENV=dev\n")
		writeFile(t, dir, ".env.dev", "EXCHANGE_NAME=DEV_EXCHANGE\n")

		cfg, err := Load(dir, discardLogger())
		require.NoError(t, err)
		assert.Equal(t, "dev", cfg.Env)
		assert.Equal(t, "DEV_EXCHANGE", cfg.RabbitMQ.Exchange)
	})

	t.Run("missing APP_ENV file is tolerated", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, ".env", "RUNNING_SERVICE=customer_service\nINTERNAL_TOKEN=secret\nAPP_ENV=nowhere\n")

		_, err := Load(dir, discardLogger())
		require.NoError(t, err)
	})

	t.Run("missing .env falls back to environment", func(t *testing.T) {
		t.Setenv("RUNNING_SERVICE", "seller_service")
		t.Setenv("INTERNAL_TOKEN", "secret")
		t.Setenv("REQUIRED_EVENTS", "GET_PROFILE, PRODUCT_VIEWED")

		cfg, err := Load(t.TempDir(), discardLogger())
		require.NoError(t, err)
		assert.Equal(t, "seller_service", cfg.Service)
		assert.Equal(t, []string{"GET_PROFILE", "PRODUCT_VIEWED"}, cfg.RequiredEvents)

		host, ok := cfg.Host(CustomerService)
		assert.True(t, ok)
		assert.Equal(t, "http://localhost:8001", host)

		_, ok = cfg.Host("unknown_service")
		assert.False(t, ok)
	})

	t.Run("missing service fails fast", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, ".env", "INTERNAL_TOKEN=secret\n")

		_, err := Load(dir, discardLogger())
		assert.ErrorIs(t, err, ErrMissingService)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Service:       "customer_service",
			InternalToken: "secret",
			Port:          8001,
			Broker:        BrokerNone,
			Shutdown:      ShutdownConfig{Timeout: time.Second},
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("missing token", func(t *testing.T) {
		cfg := valid()
		cfg.InternalToken = ""
		assert.ErrorIs(t, cfg.Validate(), ErrMissingToken)
	})

	t.Run("unknown broker", func(t *testing.T) {
		cfg := valid()
		cfg.Broker = "nats"
		err := cfg.Validate()
		assert.ErrorIs(t, err, ErrUnknownBroker)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "BROKER", verr.Key)
	})

	t.Run("kafka without brokers", func(t *testing.T) {
		cfg := valid()
		cfg.Broker = BrokerKafka
		assert.ErrorIs(t, cfg.Validate(), ErrMissingBrokers)
	})

	t.Run("rabbitmq without exchange", func(t *testing.T) {
		cfg := valid()
		cfg.Broker = BrokerRabbitMQ
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidValue)
	})

	t.Run("breaker needs an open timeout", func(t *testing.T) {
		cfg := valid()
		cfg.SyncBreaker = BreakerConfig{Failures: 3}

		var verr *ValidationError
		require.ErrorAs(t, cfg.Validate(), &verr)
		assert.Equal(t, "SYNC_BREAKER_TIMEOUT", verr.Key)

		cfg.SyncBreaker.Failures = -1
		require.ErrorAs(t, cfg.Validate(), &verr)
		assert.Equal(t, "SYNC_BREAKER_FAILURES", verr.Key)
	})

	t.Run("bad port", func(t *testing.T) {
		cfg := valid()
		cfg.Port = 0
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidValue)
	})
}
