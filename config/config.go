// Package config loads the analyzer settings: a YAML file, then environment
// overrides, then validation.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// Symbol describes the traded instrument.
type Symbol struct {
	Name           string  `yaml:"name" validate:"required"`
	PriceDecimals  int32   `yaml:"price_decimals" validate:"gte=0,lte=8"`
	VolumeDecimals int32   `yaml:"volume_decimals" validate:"gte=0,lte=8"`
	StandardLot    float64 `yaml:"standard_lot" validate:"gt=0"`
}

// Strategy selects and parameterises the strategy.
type Strategy struct {
	Use    string  `yaml:"use" validate:"required"`
	Volume float64 `yaml:"volume" validate:"gt=0"`
	Profit float64 `yaml:"profit" validate:"gte=0"` // backtest profit target, 0 disables

	FastPeriod int  `yaml:"fast_period" validate:"gte=0"`
	SlowPeriod int  `yaml:"slow_period" validate:"gte=0"`
	RSIFilter  bool `yaml:"rsi_filter"`
	RSIPeriod  int  `yaml:"rsi_period" validate:"gte=0"`

	FollowPeriod int     `yaml:"follow_period" validate:"gte=0"`
	MinMove      float64 `yaml:"min_move" validate:"gte=0"`

	AtrPeriod     int     `yaml:"atr_period" validate:"gte=0"`
	AtrMultiplier float64 `yaml:"atr_multiplier" validate:"gte=0"`

	LinRegPeriod int `yaml:"linreg_period" validate:"gte=0"`

	RenkoUse           string `yaml:"renko_use"`
	MartingaleMaxPower int    `yaml:"martingale_max_power" validate:"gte=0"`
}

// Backtest configures the virtual clock.
type Backtest struct {
	Enabled bool          `yaml:"enabled"`
	Date    string        `yaml:"date" validate:"required_if=Enabled true"`
	Step    time.Duration `yaml:"step" validate:"gt=0"`
}

// Order holds order routing settings.
type Order struct {
	ExecOrder               bool          `yaml:"exec_order"`
	Deviation               uint64        `yaml:"deviation"`
	Magic                   uint64        `yaml:"magic"`
	WhileDelay              time.Duration `yaml:"while_delay" validate:"gt=0"`
	WaitingTimeout          time.Duration `yaml:"waiting_timeout" validate:"gtfield=WhileDelay"`
	MaximumInformationDelay time.Duration `yaml:"maximum_information_delay" validate:"gt=0"`
	MaximumPriceProximity   float64       `yaml:"maximum_price_proximity" validate:"gte=0"`
}

// BrickATR sizes bricks dynamically from the ATR of finalized rates.
// Period 0 keeps the fixed brick size.
type BrickATR struct {
	Period     int     `yaml:"period" validate:"gte=0"`
	Multiplier float64 `yaml:"multiplier" validate:"required_with=Period,gte=0"`
	Min        float64 `yaml:"min" validate:"gte=0"`
}

// StreamingData configures chunked range queries.
type StreamingData struct {
	ChunkSize int `yaml:"chunk_size" validate:"gt=0"`
}

// SanityTest configures the order-path sanity check.
type SanityTest struct {
	Execute bool    `yaml:"execute"`
	Offset  float64 `yaml:"offset" validate:"gte=0"`
}

// Redis configures the cache.
type Redis struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr" validate:"required_if=Enabled true"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"gte=0"`
	TTL      time.Duration `yaml:"ttl" validate:"gte=0"`
	Buffer   int           `yaml:"buffer" validate:"gte=0"`
}

// SQLite configures the backtest journal.
type SQLite struct {
	Path string `yaml:"path"` // empty disables the journal
}

// Feed configures the market data and broker connection.
type Feed struct {
	URL            string        `yaml:"url" validate:"omitempty,url"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gte=0"`
	StreamTimeout  time.Duration `yaml:"stream_timeout" validate:"gte=0"`
}

// Metrics configures the metrics server.
type Metrics struct {
	Addr string `yaml:"addr"` // empty disables the server
}

// Notify configures alert delivery. Every channel is optional.
type Notify struct {
	WebhookURL    string `yaml:"webhook_url" validate:"omitempty,url"`
	TelegramToken string `yaml:"telegram_token"`
	TelegramChat  string `yaml:"telegram_chat" validate:"required_with=TelegramToken"`
}

// Log configures logging.
type Log struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`
}

// Settings holds all application configuration.
type Settings struct {
	Symbol        Symbol        `yaml:"symbol"`
	TimeZone      string        `yaml:"time_zone"`
	Start         string        `yaml:"start" validate:"datetime=15:04"` // session open, local HH:MM
	End           string        `yaml:"end" validate:"datetime=15:04"`   // session close, local HH:MM
	Holidays      []string      `yaml:"holidays" validate:"dive,datetime=2006-01-02"`
	Timeframe     time.Duration `yaml:"timeframe" validate:"gt=0"`
	Window        time.Duration `yaml:"window" validate:"gtefield=Timeframe"`
	BrickSize     float64       `yaml:"brick_size" validate:"gt=0"`
	BrickATR      BrickATR      `yaml:"brick_atr"`
	ErrorLogSize  int           `yaml:"error_log_size" validate:"gte=0"`
	OnlineRates   bool          `yaml:"online_rates"`
	Strategy      Strategy      `yaml:"strategy"`
	Backtest      Backtest      `yaml:"backtest"`
	Order         Order         `yaml:"order"`
	StreamingData StreamingData `yaml:"streaming_data"`
	SanityTest    SanityTest    `yaml:"sanity_test"`
	Redis         Redis         `yaml:"redis"`
	SQLite        SQLite        `yaml:"sqlite"`
	Feed          Feed          `yaml:"feed"`
	Metrics       Metrics       `yaml:"metrics"`
	Notify        Notify        `yaml:"notify"`
	Log           Log           `yaml:"log"`
}

// Default returns the settings used for anything the file leaves out.
func Default() *Settings {
	return &Settings{
		Symbol:    Symbol{Name: "WIN", StandardLot: 1},
		TimeZone:  "UTC",
		Start:     "09:00",
		End:       "17:30",
		Timeframe: time.Minute,
		Window:    time.Hour,
		BrickSize: 50,
		Strategy: Strategy{
			Use: "ema-cross", Volume: 1,
			FastPeriod: 9, SlowPeriod: 21, RSIPeriod: 14,
			FollowPeriod: 20, AtrPeriod: 14, AtrMultiplier: 2, LinRegPeriod: 20,
			MartingaleMaxPower: 3,
		},
		Backtest: Backtest{Step: time.Minute},
		Order: Order{
			WhileDelay:              100 * time.Millisecond,
			WaitingTimeout:          5 * time.Second,
			MaximumInformationDelay: 10 * time.Second,
		},
		StreamingData: StreamingData{ChunkSize: 5000},
		SanityTest:    SanityTest{Offset: 500},
		Redis:         Redis{Addr: "localhost:6379", TTL: 24 * time.Hour, Buffer: 1000},
		Feed:          Feed{URL: "ws://localhost:9001/ws", RequestTimeout: 5 * time.Second, StreamTimeout: 2 * time.Minute},
		Metrics:       Metrics{Addr: ":9090"},
		Log:           Log{Level: "info", Format: "json"},
	}
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides and validates the result.
func Load(path string) (*Settings, error) {
	s := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := s.decode(raw); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	s.applyEnv()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) decode(raw []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv overrides the deployment-specific fields from the environment.
func (s *Settings) applyEnv() {
	s.Symbol.Name = getEnv("ANALYZER_SYMBOL", s.Symbol.Name)
	s.Strategy.Use = getEnv("ANALYZER_STRATEGY", s.Strategy.Use)
	s.Backtest.Date = getEnv("ANALYZER_BACKTEST_DATE", s.Backtest.Date)
	s.Order.ExecOrder = getEnvBool("ANALYZER_EXEC_ORDER", s.Order.ExecOrder)

	s.Redis.Addr = getEnv("REDIS_ADDR", s.Redis.Addr)
	s.Redis.Password = getEnv("REDIS_PASSWORD", s.Redis.Password)
	s.SQLite.Path = getEnv("SQLITE_PATH", s.SQLite.Path)
	s.Feed.URL = getEnv("FEED_URL", s.Feed.URL)
	s.Metrics.Addr = getEnv("METRICS_ADDR", s.Metrics.Addr)
	s.Notify.WebhookURL = getEnv("NOTIFY_WEBHOOK_URL", s.Notify.WebhookURL)
	s.Notify.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", s.Notify.TelegramToken)
	s.Notify.TelegramChat = getEnv("TELEGRAM_CHAT_ID", s.Notify.TelegramChat)
	s.Log.Level = getEnv("LOG_LEVEL", s.Log.Level)
}

var validate = validator.New()

// Validate checks field constraints and the values that need parsing.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := s.Location(); err != nil {
		return err
	}
	open, close, err := s.Session()
	if err != nil {
		return err
	}
	if open >= close {
		return fmt.Errorf("config: start %s not before end %s", s.Start, s.End)
	}
	if s.Backtest.Enabled {
		if _, err := s.Day(); err != nil {
			return err
		}
	}
	return nil
}

// ProductionMode reports whether orders reach a live venue.
func (s *Settings) ProductionMode() bool {
	return s.Order.ExecOrder && !s.Backtest.Enabled
}

// Location loads the session time zone.
func (s *Settings) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("config: time zone %q: %w", s.TimeZone, err)
	}
	return loc, nil
}

// Session returns the open and close offsets from local midnight.
func (s *Settings) Session() (open, close time.Duration, err error) {
	if open, err = offset(s.Start); err != nil {
		return 0, 0, err
	}
	if close, err = offset(s.End); err != nil {
		return 0, 0, err
	}
	return open, close, nil
}

// Day returns local midnight of the backtest date.
func (s *Settings) Day() (time.Time, error) {
	loc, err := s.Location()
	if err != nil {
		return time.Time{}, err
	}
	d, err := time.ParseInLocation(dateLayout, s.Backtest.Date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: backtest date %q: %w", s.Backtest.Date, err)
	}
	return d, nil
}

// BacktestRange returns the session bounds of the backtest date.
func (s *Settings) BacktestRange() (start, end time.Time, err error) {
	day, err := s.Day()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	open, close, err := s.Session()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return day.Add(open), day.Add(close), nil
}

func offset(hhmm string) (time.Duration, error) {
	t, err := time.Parse(clockLayout, hhmm)
	if err != nil {
		return 0, fmt.Errorf("config: session time %q: %w", hhmm, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
