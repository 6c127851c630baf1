package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "analyzer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "WIN", s.Symbol.Name)
	assert.Equal(t, time.Minute, s.Timeframe)
	assert.False(t, s.ProductionMode())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
symbol:
  name: WDO
  price_decimals: 1
  standard_lot: 1
time_zone: America/Sao_Paulo
start: "09:05"
end: "18:20"
timeframe: 5m
window: 2h
brick_size: 10
strategy:
  use: fade:linreg
  volume: 2
backtest:
  enabled: true
  date: "2024-03-04"
  step: 30s
order:
  exec_order: true
  while_delay: 50ms
  waiting_timeout: 2s
  maximum_information_delay: 5s
`)
	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "WDO", s.Symbol.Name)
	assert.Equal(t, 5*time.Minute, s.Timeframe)
	assert.Equal(t, 2*time.Hour, s.Window)
	assert.Equal(t, "fade:linreg", s.Strategy.Use)
	assert.Equal(t, 30*time.Second, s.Backtest.Step)
	assert.Equal(t, 5000, s.StreamingData.ChunkSize, "default kept")
	assert.False(t, s.ProductionMode(), "backtest never reaches the venue")

	start, end, err := s.BacktestRange()
	require.NoError(t, err)
	assert.Equal(t, 9, start.Hour())
	assert.Equal(t, 5, start.Minute())
	assert.Equal(t, 18, end.Hour())
	assert.Equal(t, "America/Sao_Paulo", start.Location().String())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "symbol:\n  name: WDO\n  standard_lot: 1\n")
	t.Setenv("ANALYZER_SYMBOL", "IND")
	t.Setenv("ANALYZER_EXEC_ORDER", "true")
	t.Setenv("REDIS_ADDR", "cache:6380")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "IND", s.Symbol.Name)
	assert.Equal(t, "cache:6380", s.Redis.Addr)
	assert.True(t, s.ProductionMode())
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown field":          "symbol:\n  nme: WIN\n",
		"zero brick":             "brick_size: 0\n",
		"window below timeframe": "timeframe: 5m\nwindow: 1m\n",
		"bad session time":       "start: \"9h\"\n",
		"start after end":        "start: \"18:00\"\nend: \"09:00\"\n",
		"backtest without date":  "backtest:\n  enabled: true\n",
		"bad time zone":          "time_zone: Mars/Olympus\n",
		"timeout below delay":    "order:\n  while_delay: 2s\n  waiting_timeout: 1s\n",
		"telegram without chat":  "notify:\n  telegram_token: abc\n",
		"atr brick without mult": "brick_atr:\n  period: 14\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_ExampleFile(t *testing.T) {
	s, err := Load("analyzer.example.yaml")
	require.NoError(t, err)
	assert.Equal(t, "America/Sao_Paulo", s.TimeZone)
	assert.Equal(t, 2*time.Hour, s.Window)
	assert.Len(t, s.Holidays, 2)
	assert.Zero(t, s.BrickATR.Period, "fixed bricks unless enabled")
}
