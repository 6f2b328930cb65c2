package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

var ErrInvalidConfig = errors.New("invalid config")

// Stimulus modes.
const (
	StimulusNone   = "none"
	StimulusPulse  = "pulse"
	StimulusCyclic = "cyclic"
)

// Pins names the GPIO lines by their host names (e.g. "GPIO24").
type Pins struct {
	Restraint string `toml:"restraint"`
	Reward    string `toml:"reward"`
	Indicator string `toml:"indicator"`
	Contact   string `toml:"contact"`
	Range     string `toml:"range"`
	Stimulus  string `toml:"stimulus"`
	// Cyclic maps a wiring position (e.g. "left") to a pin name.
	Cyclic map[string]string `toml:"cyclic"`
}

type Config struct {
	CageID    string
	DataDir   string
	DBPath    string
	LogLevel  string
	LogPretty bool

	SerialPort     string
	BaudRate       int
	VerifyChecksum bool

	Pins Pins

	RestInterval        time.Duration
	EntranceRewardDelay time.Duration
	MaxEntranceRewards  int
	RewardOn            time.Duration
	InterRewardInterval time.Duration
	StimulusPhase       time.Duration // 0 = half the inter-reward interval
	HeadFixRewards      int
	Skedaddle           time.Duration

	StimulusMode   string // "none" | "pulse" | "cyclic"
	StimulusOn     time.Duration
	CyclicOrder    []string
	FlashCount     int
	FlashFrequency float64

	VideoEnabled bool
	VideoDir     string
	VideoCommand []string // empty = the rpicam-vid default

	StatsExportInterval time.Duration // 0 = disabled

	HTTPAddr string // empty = no status API
	GRPCAddr string // empty = no health service
}

func Default() Config {
	return Config{
		DataDir:  "./data",
		DBPath:   "./data/headfix.db",
		LogLevel: "info",

		SerialPort:     "/dev/serial0",
		BaudRate:       9600,
		VerifyChecksum: true,

		Pins: Pins{
			Restraint: "GPIO24",
			Reward:    "GPIO17",
			Indicator: "GPIO4",
			Contact:   "GPIO22",
			Range:     "GPIO18",
			Stimulus:  "GPIO21",
		},

		RestInterval:        10 * time.Millisecond,
		EntranceRewardDelay: 2 * time.Second,
		MaxEntranceRewards:  100,
		RewardOn:            100 * time.Millisecond,
		InterRewardInterval: 5 * time.Second,
		HeadFixRewards:      6,
		Skedaddle:           3 * time.Second,

		StimulusMode:   StimulusNone,
		StimulusOn:     10 * time.Millisecond,
		FlashCount:     5,
		FlashFrequency: 10,

		VideoDir: "./movies",
	}
}

// FromEnv returns the defaults overlaid with HEADFIX_* environment
// variables. Unparseable values fall back to the default.
func FromEnv() Config {
	c := Default()

	c.CageID = getenvDefault("HEADFIX_CAGE_ID", c.CageID)
	c.DataDir = getenvDefault("HEADFIX_DATA_DIR", c.DataDir)
	c.DBPath = getenvDefault("HEADFIX_DB_PATH", c.DBPath)
	c.LogLevel = strings.ToLower(getenvDefault("HEADFIX_LOG_LEVEL", c.LogLevel))
	c.LogPretty = getenvBool("HEADFIX_LOG_PRETTY", c.LogPretty)

	c.SerialPort = getenvDefault("HEADFIX_SERIAL_PORT", c.SerialPort)
	c.BaudRate = getenvInt("HEADFIX_BAUD_RATE", c.BaudRate)
	c.VerifyChecksum = getenvBool("HEADFIX_VERIFY_CHECKSUM", c.VerifyChecksum)

	c.Pins.Restraint = getenvDefault("HEADFIX_PIN_RESTRAINT", c.Pins.Restraint)
	c.Pins.Reward = getenvDefault("HEADFIX_PIN_REWARD", c.Pins.Reward)
	c.Pins.Indicator = getenvDefault("HEADFIX_PIN_INDICATOR", c.Pins.Indicator)
	c.Pins.Contact = getenvDefault("HEADFIX_PIN_CONTACT", c.Pins.Contact)
	c.Pins.Range = getenvDefault("HEADFIX_PIN_RANGE", c.Pins.Range)
	c.Pins.Stimulus = getenvDefault("HEADFIX_PIN_STIMULUS", c.Pins.Stimulus)
	if pins := splitPairs(os.Getenv("HEADFIX_CYCLIC_PINS")); len(pins) > 0 {
		c.Pins.Cyclic = pins
	}

	c.RestInterval = getenvDuration("HEADFIX_REST_INTERVAL", c.RestInterval)
	c.EntranceRewardDelay = getenvDuration("HEADFIX_ENTRANCE_REWARD_DELAY", c.EntranceRewardDelay)
	c.MaxEntranceRewards = getenvInt("HEADFIX_MAX_ENTRANCE_REWARDS", c.MaxEntranceRewards)
	c.RewardOn = getenvDuration("HEADFIX_REWARD_ON", c.RewardOn)
	c.InterRewardInterval = getenvDuration("HEADFIX_INTER_REWARD_INTERVAL", c.InterRewardInterval)
	c.StimulusPhase = getenvDuration("HEADFIX_STIMULUS_PHASE", c.StimulusPhase)
	c.HeadFixRewards = getenvInt("HEADFIX_HEADFIX_REWARDS", c.HeadFixRewards)
	c.Skedaddle = getenvDuration("HEADFIX_SKEDADDLE", c.Skedaddle)

	c.StimulusMode = strings.ToLower(getenvDefault("HEADFIX_STIMULUS_MODE", c.StimulusMode))
	c.StimulusOn = getenvDuration("HEADFIX_STIMULUS_ON", c.StimulusOn)
	if order := splitCSV(os.Getenv("HEADFIX_CYCLIC_ORDER")); len(order) > 0 {
		c.CyclicOrder = order
	}
	c.FlashCount = getenvInt("HEADFIX_FLASH_COUNT", c.FlashCount)
	c.FlashFrequency = getenvFloat("HEADFIX_FLASH_FREQUENCY", c.FlashFrequency)

	c.VideoEnabled = getenvBool("HEADFIX_VIDEO_ENABLED", c.VideoEnabled)
	c.VideoDir = getenvDefault("HEADFIX_VIDEO_DIR", c.VideoDir)
	if cmd := strings.Fields(os.Getenv("HEADFIX_VIDEO_COMMAND")); len(cmd) > 0 {
		c.VideoCommand = cmd
	}

	c.StatsExportInterval = getenvDuration("HEADFIX_STATS_EXPORT_INTERVAL", c.StatsExportInterval)
	c.HTTPAddr = getenvDefault("HEADFIX_HTTP_ADDR", c.HTTPAddr)
	c.GRPCAddr = getenvDefault("HEADFIX_GRPC_ADDR", c.GRPCAddr)

	return c
}

// fileConfig maps config.toml keys onto Config.
type fileConfig struct {
	CageID    string `toml:"cage_id"`
	DataDir   string `toml:"data_dir"`
	DBPath    string `toml:"db_path"`
	LogLevel  string `toml:"log_level"`
	LogPretty bool   `toml:"log_pretty"`

	SerialPort     string `toml:"serial_port"`
	BaudRate       int    `toml:"baud_rate"`
	VerifyChecksum bool   `toml:"verify_checksum"`

	Pins Pins `toml:"pins"`

	RestInterval        time.Duration `toml:"rest_interval"`
	EntranceRewardDelay time.Duration `toml:"entrance_reward_delay"`
	MaxEntranceRewards  int           `toml:"max_entrance_rewards"`
	RewardOn            time.Duration `toml:"reward_on"`
	InterRewardInterval time.Duration `toml:"inter_reward_interval"`
	StimulusPhase       time.Duration `toml:"stimulus_phase"`
	HeadFixRewards      int           `toml:"headfix_rewards"`
	Skedaddle           time.Duration `toml:"skedaddle"`

	StimulusMode   string        `toml:"stimulus_mode"`
	StimulusOn     time.Duration `toml:"stimulus_on"`
	CyclicOrder    []string      `toml:"cyclic_order"`
	FlashCount     int           `toml:"flash_count"`
	FlashFrequency float64       `toml:"flash_frequency"`

	VideoEnabled bool     `toml:"video_enabled"`
	VideoDir     string   `toml:"video_dir"`
	VideoCommand []string `toml:"video_command"`

	StatsExportInterval time.Duration `toml:"stats_export_interval"`
	HTTPAddr            string        `toml:"http_addr"`
	GRPCAddr            string        `toml:"grpc_addr"`
}

// LoadFile overlays the keys present in the TOML file at path onto c.
// Keys absent from the file leave c unchanged.
func (c Config) LoadFile(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q in %s", ErrInvalidConfig, undecoded[0].String(), path)
	}

	setString := func(dst *string, v string, key ...string) {
		if meta.IsDefined(key...) {
			*dst = strings.TrimSpace(v)
		}
	}
	setDur := func(dst *time.Duration, v time.Duration, key string) {
		if meta.IsDefined(key) {
			*dst = v
		}
	}
	setInt := func(dst *int, v int, key string) {
		if meta.IsDefined(key) {
			*dst = v
		}
	}

	setString(&c.CageID, raw.CageID, "cage_id")
	setString(&c.DataDir, raw.DataDir, "data_dir")
	setString(&c.DBPath, raw.DBPath, "db_path")
	setString(&c.LogLevel, strings.ToLower(raw.LogLevel), "log_level")
	if meta.IsDefined("log_pretty") {
		c.LogPretty = raw.LogPretty
	}

	setString(&c.SerialPort, raw.SerialPort, "serial_port")
	setInt(&c.BaudRate, raw.BaudRate, "baud_rate")
	if meta.IsDefined("verify_checksum") {
		c.VerifyChecksum = raw.VerifyChecksum
	}

	setString(&c.Pins.Restraint, raw.Pins.Restraint, "pins", "restraint")
	setString(&c.Pins.Reward, raw.Pins.Reward, "pins", "reward")
	setString(&c.Pins.Indicator, raw.Pins.Indicator, "pins", "indicator")
	setString(&c.Pins.Contact, raw.Pins.Contact, "pins", "contact")
	setString(&c.Pins.Range, raw.Pins.Range, "pins", "range")
	setString(&c.Pins.Stimulus, raw.Pins.Stimulus, "pins", "stimulus")
	if meta.IsDefined("pins", "cyclic") {
		c.Pins.Cyclic = raw.Pins.Cyclic
	}

	setDur(&c.RestInterval, raw.RestInterval, "rest_interval")
	setDur(&c.EntranceRewardDelay, raw.EntranceRewardDelay, "entrance_reward_delay")
	setInt(&c.MaxEntranceRewards, raw.MaxEntranceRewards, "max_entrance_rewards")
	setDur(&c.RewardOn, raw.RewardOn, "reward_on")
	setDur(&c.InterRewardInterval, raw.InterRewardInterval, "inter_reward_interval")
	setDur(&c.StimulusPhase, raw.StimulusPhase, "stimulus_phase")
	setInt(&c.HeadFixRewards, raw.HeadFixRewards, "headfix_rewards")
	setDur(&c.Skedaddle, raw.Skedaddle, "skedaddle")

	setString(&c.StimulusMode, strings.ToLower(raw.StimulusMode), "stimulus_mode")
	setDur(&c.StimulusOn, raw.StimulusOn, "stimulus_on")
	if meta.IsDefined("cyclic_order") {
		c.CyclicOrder = raw.CyclicOrder
	}
	setInt(&c.FlashCount, raw.FlashCount, "flash_count")
	if meta.IsDefined("flash_frequency") {
		c.FlashFrequency = raw.FlashFrequency
	}

	if meta.IsDefined("video_enabled") {
		c.VideoEnabled = raw.VideoEnabled
	}
	setString(&c.VideoDir, raw.VideoDir, "video_dir")
	if meta.IsDefined("video_command") {
		c.VideoCommand = raw.VideoCommand
	}

	setDur(&c.StatsExportInterval, raw.StatsExportInterval, "stats_export_interval")
	setString(&c.HTTPAddr, raw.HTTPAddr, "http_addr")
	setString(&c.GRPCAddr, raw.GRPCAddr, "grpc_addr")

	return c, nil
}

// Load reads the environment and, when path is non-empty, overlays the
// TOML file at path.
func Load(path string) (Config, error) {
	c := FromEnv()
	if strings.TrimSpace(path) == "" {
		return c, nil
	}
	return c.LoadFile(path)
}

func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	switch {
	case strings.TrimSpace(c.CageID) == "":
		return invalid("cage_id is required")
	case c.RestInterval <= 0:
		return invalid("rest_interval must be positive, got %s", c.RestInterval)
	case c.RewardOn <= 0:
		return invalid("reward_on must be positive, got %s", c.RewardOn)
	case c.RewardOn > c.InterRewardInterval:
		return invalid("reward_on %s exceeds inter_reward_interval %s", c.RewardOn, c.InterRewardInterval)
	case c.StimulusPhase != 0 && (c.StimulusPhase < c.RewardOn || c.StimulusPhase > c.InterRewardInterval):
		return invalid("stimulus_phase %s outside [%s, %s]", c.StimulusPhase, c.RewardOn, c.InterRewardInterval)
	case c.HeadFixRewards < 0:
		return invalid("headfix_rewards must be >= 0, got %d", c.HeadFixRewards)
	case c.MaxEntranceRewards < 0:
		return invalid("max_entrance_rewards must be >= 0, got %d", c.MaxEntranceRewards)
	case c.EntranceRewardDelay < 0 || c.Skedaddle < 0 || c.StatsExportInterval < 0:
		return invalid("durations must not be negative")
	case c.BaudRate <= 0:
		return invalid("baud_rate must be positive, got %d", c.BaudRate)
	}

	switch c.StimulusMode {
	case StimulusNone:
	case StimulusPulse:
		if c.StimulusOn <= 0 {
			return invalid("stimulus_on must be positive, got %s", c.StimulusOn)
		}
		if c.Pins.Stimulus == "" {
			return invalid("pins.stimulus is required for pulse stimulus")
		}
	case StimulusCyclic:
		if len(c.CyclicOrder) == 0 {
			return invalid("cyclic_order is required for cyclic stimulus")
		}
		for _, name := range c.CyclicOrder {
			if _, ok := c.Pins.Cyclic[name]; !ok {
				return invalid("cyclic_order names %q with no pin in pins.cyclic", name)
			}
		}
		if c.FlashCount <= 0 || c.FlashFrequency <= 0 {
			return invalid("flash_count and flash_frequency must be positive")
		}
	default:
		return invalid("unknown stimulus_mode %q", c.StimulusMode)
	}
	return nil
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return def
	}
	return f
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}

func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitPairs parses "left=GPIO5,right=GPIO6".
func splitPairs(v string) map[string]string {
	parts := splitCSV(v)
	if len(parts) == 0 {
		return nil
	}
	out := make(map[string]string, len(parts))
	for _, p := range parts {
		k, val, ok := strings.Cut(p, "=")
		k, val = strings.TrimSpace(k), strings.TrimSpace(val)
		if !ok || k == "" || val == "" {
			continue
		}
		out[k] = val
	}
	return out
}
