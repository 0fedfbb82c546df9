package platform

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"

	"github.com/robotalks/uci.go/pkg/uci/codec"
	"github.com/robotalks/uci.go/pkg/uci/comm"
)

// Config provides common options to setup a Host.
type Config struct {
	// LinkURL specifies the link to the device.
	// e.g. tty:///dev/ttyUSB0, tcp://host:port
	LinkURL string
	// MQTTURL specifies the MQTT broker reports are published to,
	// reports are not published if empty.
	// e.g. mqtt://host:port/topic-prefix
	MQTTURL string
	// DeviceID identifies the device in MQTT topics.
	DeviceID string
	// Timeout is the deadline of commands, 0 for none.
	Timeout time.Duration
	// ExpireInterval is the interval of deadline checks.
	ExpireInterval time.Duration
	// MaxPayload limits the payload of received packets.
	MaxPayload int
	// SegmentSize is the max payload of sent packets.
	SegmentSize int
	// MaxDepth limits the nesting of decoded payloads.
	MaxDepth int
}

var defaultConfig = Config{
	LinkURL:        "tty:///dev/ttyUSB0",
	Timeout:        2 * time.Second,
	ExpireInterval: 100 * time.Millisecond,
	MaxPayload:     comm.MaxPayload,
	SegmentSize:    255,
	MaxDepth:       codec.DefaultMaxDepth,
}

// envConfig is defaultConfig before command line flags are parsed.
var envConfig Config

var configFile string

func init() {
	if id, err := machineid.ProtectedID("uci"); err == nil {
		defaultConfig.DeviceID = id[:12]
	}
	if val := os.Getenv("UCI_LINK_URL"); val != "" {
		defaultConfig.LinkURL = val
	}
	if val := os.Getenv("UCI_MQTT_URL"); val != "" {
		defaultConfig.MQTTURL = val
	}
	if val := os.Getenv("UCI_DEVICE_ID"); val != "" {
		defaultConfig.DeviceID = val
	}
	envConfig = defaultConfig
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&configFile, "config", configFile, "Config file (TOML)")
	flag.StringVar(&defaultConfig.LinkURL, "link", defaultConfig.LinkURL, "Device link URL")
	flag.StringVar(&defaultConfig.MQTTURL, "mqtt", defaultConfig.MQTTURL, "MQTT broker URL for publishing reports")
	flag.StringVar(&defaultConfig.DeviceID, "device", defaultConfig.DeviceID, "Device ID")
	flag.DurationVar(&defaultConfig.Timeout, "timeout", defaultConfig.Timeout, "Command timeout")
}

// flagFields copies the field bound to a flag.
var flagFields = map[string]func(dst, src *Config){
	"link":    func(dst, src *Config) { dst.LinkURL = src.LinkURL },
	"mqtt":    func(dst, src *Config) { dst.MQTTURL = src.MQTTURL },
	"device":  func(dst, src *Config) { dst.DeviceID = src.DeviceID },
	"timeout": func(dst, src *Config) { dst.Timeout = src.Timeout },
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Load creates a Config from environment, the config file and command
// line flags, in the order of increasing precedence.
func Load() (*Config, error) {
	if configFile == "" {
		conf := NewConfig()
		return conf, conf.Validate()
	}
	var setFlags []string
	flag.Visit(func(f *flag.Flag) {
		setFlags = append(setFlags, f.Name)
	})
	return load(configFile, setFlags)
}

// MustLoad loads Config and fails on error.
func MustLoad() *Config {
	conf, err := Load()
	if err != nil {
		log.Fatalln(err)
	}
	return conf
}

func load(path string, setFlags []string) (*Config, error) {
	conf := envConfig
	if err := conf.LoadFile(path); err != nil {
		return nil, err
	}
	for _, name := range setFlags {
		if copyField, ok := flagFields[name]; ok {
			copyField(&conf, &defaultConfig)
		}
	}
	return &conf, conf.Validate()
}

type fileConfig struct {
	Link           string `toml:"link"`
	MQTT           string `toml:"mqtt"`
	Device         string `toml:"device"`
	Timeout        string `toml:"timeout"`
	ExpireInterval string `toml:"expire_interval"`
	MaxPayload     int    `toml:"max_payload"`
	SegmentSize    int    `toml:"segment_size"`
	MaxDepth       int    `toml:"max_depth"`
}

// LoadFile overlays keys defined in a TOML file.
func (c *Config) LoadFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}
	if meta.IsDefined("link") {
		c.LinkURL = strings.TrimSpace(raw.Link)
	}
	if meta.IsDefined("mqtt") {
		c.MQTTURL = strings.TrimSpace(raw.MQTT)
	}
	if meta.IsDefined("device") {
		c.DeviceID = strings.TrimSpace(raw.Device)
	}
	if meta.IsDefined("timeout") {
		if c.Timeout, err = time.ParseDuration(raw.Timeout); err != nil {
			return fmt.Errorf("load config: timeout: %w", err)
		}
	}
	if meta.IsDefined("expire_interval") {
		if c.ExpireInterval, err = time.ParseDuration(raw.ExpireInterval); err != nil {
			return fmt.Errorf("load config: expire_interval: %w", err)
		}
	}
	if meta.IsDefined("max_payload") {
		c.MaxPayload = raw.MaxPayload
	}
	if meta.IsDefined("segment_size") {
		c.SegmentSize = raw.SegmentSize
	}
	if meta.IsDefined("max_depth") {
		c.MaxDepth = raw.MaxDepth
	}
	return nil
}

// Validate checks the config.
func (c *Config) Validate() error {
	u, err := url.Parse(c.LinkURL)
	if err != nil || u.Scheme == "" {
		return fmt.Errorf("invalid link URL %q", c.LinkURL)
	}
	if c.MQTTURL != "" && c.DeviceID == "" {
		return errors.New("device ID is required for publishing reports")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("invalid timeout %v", c.Timeout)
	}
	if c.ExpireInterval <= 0 {
		return fmt.Errorf("invalid expire interval %v", c.ExpireInterval)
	}
	if c.MaxPayload < 1 || c.MaxPayload > comm.MaxMessage {
		return fmt.Errorf("invalid max payload %d", c.MaxPayload)
	}
	if c.SegmentSize < 1 || c.SegmentSize > comm.MaxMessage {
		return fmt.Errorf("invalid segment size %d", c.SegmentSize)
	}
	if _, err := codec.New(c.codecLimits()); err != nil {
		return err
	}
	return nil
}

func (c *Config) codecLimits() codec.Limits {
	limits := codec.DefaultLimits()
	limits.MaxDepth = c.MaxDepth
	return limits
}

// SessionOptions returns the options for comm.Session.
func (c *Config) SessionOptions() comm.Options {
	return comm.Options{
		MaxPayload:  c.MaxPayload,
		SegmentSize: c.SegmentSize,
	}
}

// DispatcherOptions returns the options for comm.Dispatcher.
func (c *Config) DispatcherOptions() (comm.DispatcherOptions, error) {
	cc, err := codec.New(c.codecLimits())
	if err != nil {
		return comm.DispatcherOptions{}, err
	}
	return comm.DispatcherOptions{Timeout: c.Timeout, Codec: cc}, nil
}
