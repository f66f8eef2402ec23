package gqlmock

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestConfig(t *testing.T) {
	t.Run("no interface provided", func(t *testing.T) {
		cfg := new(Config)
		cfg.Port = 8082
		cfg.PrivatePort = 8083
		cfg.MetricsPort = 8084
		require.Equal(t, ":8082", cfg.PublicAddress())
		require.Equal(t, ":8083", cfg.PrivateAddress())
		require.Equal(t, ":8084", cfg.MetricAddress())
	})
	t.Run("network address provided", func(t *testing.T) {
		cfg := new(Config)
		cfg.ListenAddress = "0.0.0.0:8082"
		cfg.Port = 0
		cfg.PrivateListenAddress = "127.0.0.1:8084"
		cfg.PrivatePort = 8083
		cfg.MetricsListenAddress = ""
		cfg.MetricsPort = 8084
		require.Equal(t, "0.0.0.0:8082", cfg.PublicAddress())
		require.Equal(t, "127.0.0.1:8084", cfg.PrivateAddress())
		require.Equal(t, ":8084", cfg.MetricAddress())
	})
}

func TestGetConfig(t *testing.T) {
	prevLevel := log.GetLevel()
	t.Cleanup(func() { log.SetLevel(prevLevel) })

	t.Run("defaults", func(t *testing.T) {
		dir := t.TempDir()
		configFile := writeFile(t, dir, "config.json", `{}`)

		cfg, err := GetConfig([]string{configFile})
		require.NoError(t, err)
		assert.Equal(t, ":8082", cfg.PublicAddress())
		assert.Equal(t, ":8083", cfg.PrivateAddress())
		assert.Equal(t, ":9009", cfg.MetricAddress())
		assert.Equal(t, 5*time.Minute, cfg.PublicTimeouts.WriteTimeoutDuration)
		assert.Equal(t, 5*time.Second, cfg.PrivateTimeouts.ReadTimeoutDuration)
		assert.Empty(t, cfg.Fixtures)
	})

	t.Run("fixtures from config and fixture files", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "fixtures.json", `[
			{"operation-name": "Hero", "responses": [{"data": {"hero": {"name": "R2-D2"}}}]}
		]`)
		configFile := writeFile(t, dir, "config.json", `{
			"port": 9000,
			"public-timeouts": {"write": "10s"},
			"fixture-files": ["fixtures.json"],
			"fixtures": [{"client-name": "broken", "network-error": "connection refused"}]
		}`)

		cfg, err := GetConfig([]string{configFile})
		require.NoError(t, err)
		assert.Equal(t, ":9000", cfg.PublicAddress())
		assert.Equal(t, 10*time.Second, cfg.PublicTimeouts.WriteTimeoutDuration)
		assert.Equal(t, 5*time.Minute, cfg.PrivateTimeouts.WriteTimeoutDuration)
		require.Len(t, cfg.Fixtures, 2)
		assert.Equal(t, "broken", cfg.Fixtures[0].ClientName)
		assert.Equal(t, "Hero", cfg.Fixtures[1].OperationName)
		assert.Equal(t, []string{filepath.Join(dir, "fixtures.json")}, cfg.FixtureFiles)
	})

	t.Run("fixtures are concatenated across config files", func(t *testing.T) {
		dir := t.TempDir()
		first := writeFile(t, dir, "first.json", `{"fixtures": [{"operation-name": "A", "complete": true}]}`)
		second := writeFile(t, dir, "second.json", `{"fixtures": [{"operation-name": "B", "complete": true}]}`)

		cfg, err := GetConfig([]string{first, second})
		require.NoError(t, err)
		require.Len(t, cfg.Fixtures, 2)
		assert.Equal(t, "A", cfg.Fixtures[0].OperationName)
		assert.Equal(t, "B", cfg.Fixtures[1].OperationName)
	})

	t.Run("fixture without outcome", func(t *testing.T) {
		dir := t.TempDir()
		configFile := writeFile(t, dir, "config.json", `{"fixtures": [{"operation-name": "Hero"}]}`)

		_, err := GetConfig([]string{configFile})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "has no outcome")
	})

	t.Run("invalid timeout", func(t *testing.T) {
		dir := t.TempDir()
		configFile := writeFile(t, dir, "config.json", `{"private-timeouts": {"read": "soon"}}`)

		_, err := GetConfig([]string{configFile})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid private read timeout")
	})

	t.Run("log level from environment", func(t *testing.T) {
		t.Setenv("GQLMOCK_LOG_LEVEL", "warn")
		dir := t.TempDir()
		configFile := writeFile(t, dir, "config.json", `{}`)

		cfg, err := GetConfig([]string{configFile})
		require.NoError(t, err)
		assert.Equal(t, log.WarnLevel, cfg.LogLevel)
	})
}

func TestConfigReload(t *testing.T) {
	prevLevel := log.GetLevel()
	t.Cleanup(func() { log.SetLevel(prevLevel) })

	dir := t.TempDir()
	fixtureFile := writeFile(t, dir, "fixtures.json", `[]`)
	configFile := writeFile(t, dir, "config.json", `{"fixture-files": ["fixtures.json"]}`)

	cfg, err := GetConfig([]string{configFile})
	require.NoError(t, err)
	require.NoError(t, cfg.Init())

	op, err := NewOperation(NewRequest(`query Hero { hero { name } }`))
	require.NoError(t, err)
	rec := NewRecorder()
	cfg.Backend().Execute(context.Background(), op, rec)
	assert.Len(t, cfg.Backend().Open(), 1)

	writeFile(t, dir, filepath.Base(fixtureFile), `[{"operation-name": "Hero", "responses": [{"data": {"hero": null}}]}]`)
	require.NoError(t, cfg.reload())
	require.Len(t, cfg.Fixtures, 1)

	op, err = NewOperation(NewRequest(`query Hero { hero { name } }`))
	require.NoError(t, err)
	rec = NewRecorder()
	cfg.Backend().Execute(context.Background(), op, rec)

	assert.True(t, rec.Completed())
	require.Len(t, rec.Responses(), 1)
	assert.JSONEq(t, `{"hero": null}`, string(rec.Responses()[0].Data))
	assert.Len(t, cfg.Backend().Open(), 1)
}
