package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osas-hub/scholarship-hub/config"
	"github.com/osas-hub/scholarship-hub/internal/domain/eligibility"
	"github.com/osas-hub/scholarship-hub/internal/infrastructure/messaging"
	"github.com/osas-hub/scholarship-hub/pkg/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "osas-hub", Environment: config.EnvProduction, Version: "1.2.0"},
		Database: config.DatabaseConfig{
			URL:             "postgres://localhost/osas",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 10 * time.Minute,
			QueryTimeout:    3 * time.Second,
		},
		Redis: config.RedisConfig{Host: "cache", Port: 6380, DB: 2, PoolSize: 7},
		Workflow: config.WorkflowConfig{
			RegularLoadUnits:        15,
			CertificateMaxAgeMonths: 3,
		},
		Observability: config.ObservabilityConfig{LogLevel: "info", LogFormat: "json"},
		Features:      config.LoadFeatureFlags(),
	}
}

func TestNewLogger_AddsServiceFields(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(testConfig(), &buf)

	log.Info("hello")
	log.Debug("hidden")
	require.NoError(t, log.Sync())

	out := buf.String()
	assert.Contains(t, out, `"app":"osas-hub"`)
	assert.Contains(t, out, `"version":"1.2.0"`)
	assert.NotContains(t, out, "hidden")
}

func TestPostgresConfig(t *testing.T) {
	pc := PostgresConfig(testConfig())

	assert.Equal(t, "postgres://localhost/osas", pc.URL)
	assert.EqualValues(t, 25, pc.MaxConns)
	assert.EqualValues(t, 5, pc.MinConns)
	assert.Equal(t, 10*time.Minute, pc.MaxConnLifetime)
	assert.Equal(t, 3*time.Second, pc.QueryTimeout)
	// unset values keep the pool defaults
	assert.NotZero(t, pc.MaxConnIdleTime)
}

func TestRedisConfig(t *testing.T) {
	rc := RedisConfig(testConfig())

	assert.Equal(t, "cache", rc.Host)
	assert.Equal(t, 6380, rc.Port)
	assert.Equal(t, 2, rc.DB)
	assert.Equal(t, 7, rc.PoolSize)
}

func TestRules_OverridesOnlySetValues(t *testing.T) {
	rules := Rules(testConfig())
	def := eligibility.DefaultRules()

	assert.Equal(t, 15, rules.RegularLoadUnits)
	assert.Equal(t, 3, rules.CertificateMaxAgeMonths)
	assert.Equal(t, def.AssistantshipMaxUnits, rules.AssistantshipMaxUnits)
	assert.Equal(t, def.FullMembershipMonths, rules.FullMembershipMonths)
}

func TestOpenRedis_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Redis.Disabled = true

	assert.Nil(t, OpenRedis(context.Background(), cfg, logger.Nop()))
}

func TestNewEventBus_WithoutCacheIsInProcess(t *testing.T) {
	bus, err := NewEventBus(context.Background(), nil, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	assert.IsType(t, &messaging.InMemoryEventBus{}, bus)
	require.NoError(t, Subscribe(bus, nil, nil, logger.Nop()))
}

func TestShutdown_RunsEveryStep(t *testing.T) {
	var ran []string
	step := func(name string, err error) Step {
		return Step{Name: name, Fn: func(context.Context) error {
			ran = append(ran, name)
			return err
		}}
	}

	Shutdown(context.Background(), logger.Nop(),
		step("http", nil),
		step("bus", errors.New("already closed")),
		step("db", nil),
	)

	assert.Equal(t, []string{"http", "bus", "db"}, ran)
}
