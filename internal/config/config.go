package config

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/simmodem/internal/logging"
	"github.com/danmuck/simmodem/internal/protocol"
	gotoml "github.com/pelletier/go-toml/v2"
)

const (
	DefaultTick        = "50ms"
	DefaultSystemPort  = 56000
	DefaultRelayHost   = "127.0.0.1"
	DefaultMaxSizeMB   = 16
	DefaultMaxBackups  = 3
	defaultMachineAddr = "machine"
)

type Config struct {
	Machine MachineConfig `toml:"machine"`
	Modem   ModemConfig   `toml:"modem"`
	Relay   RelayConfig   `toml:"relay"`
	Admin   AdminConfig   `toml:"admin"`
	Log     LogConfig     `toml:"log"`
}

type MachineConfig struct {
	Address string `toml:"address"`
	Tick    string `toml:"tick"`
}

type ModemConfig struct {
	Name          string `toml:"name"`
	MaxPacketSize int    `toml:"max_packet_size"`
	MaxArguments  int    `toml:"max_arguments"`
	SystemPort    int    `toml:"system_port"`
	RelayHost     string `toml:"relay_host"`
	OpenPorts     []int  `toml:"open_ports"`
}

type RelayConfig struct {
	Listen string `toml:"listen"`
}

type AdminConfig struct {
	Listen      string   `toml:"listen"`
	CorsOrigins []string `toml:"cors_origins"`
	Token       string   `toml:"token"`
}

type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	NoColor    bool   `toml:"no_color"`
}

func Default() Config {
	return Config{
		Machine: MachineConfig{
			Address: defaultMachineAddr,
			Tick:    DefaultTick,
		},
		Modem: ModemConfig{
			MaxPacketSize: protocol.DefaultMaxPacketSize,
			MaxArguments:  protocol.DefaultMaxArguments,
			SystemPort:    DefaultSystemPort,
			RelayHost:     DefaultRelayHost,
			OpenPorts:     []int{},
		},
		Relay: RelayConfig{
			Listen: ":" + strconv.Itoa(DefaultSystemPort),
		},
		Admin: AdminConfig{
			CorsOrigins: []string{},
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  DefaultMaxSizeMB,
			MaxBackups: DefaultMaxBackups,
		},
	}
}

// Load reads path over the defaults. Only keys present in the file override.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw Config
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config parse failed (%s): unknown key %s", path, undecoded[0])
	}

	if meta.IsDefined("machine", "address") {
		cfg.Machine.Address = strings.TrimSpace(raw.Machine.Address)
	}
	if meta.IsDefined("machine", "tick") {
		cfg.Machine.Tick = strings.TrimSpace(raw.Machine.Tick)
	}

	if meta.IsDefined("modem", "name") {
		cfg.Modem.Name = strings.TrimSpace(raw.Modem.Name)
	}
	if meta.IsDefined("modem", "max_packet_size") {
		cfg.Modem.MaxPacketSize = raw.Modem.MaxPacketSize
	}
	if meta.IsDefined("modem", "max_arguments") {
		cfg.Modem.MaxArguments = raw.Modem.MaxArguments
	}
	if meta.IsDefined("modem", "system_port") {
		cfg.Modem.SystemPort = raw.Modem.SystemPort
	}
	if meta.IsDefined("modem", "relay_host") {
		cfg.Modem.RelayHost = strings.TrimSpace(raw.Modem.RelayHost)
	}
	if meta.IsDefined("modem", "open_ports") {
		cfg.Modem.OpenPorts = append([]int{}, raw.Modem.OpenPorts...)
	}

	if meta.IsDefined("relay", "listen") {
		cfg.Relay.Listen = strings.TrimSpace(raw.Relay.Listen)
	}

	if meta.IsDefined("admin", "listen") {
		cfg.Admin.Listen = strings.TrimSpace(raw.Admin.Listen)
	}
	if meta.IsDefined("admin", "cors_origins") {
		cfg.Admin.CorsOrigins = normalizeList(raw.Admin.CorsOrigins)
	}
	if meta.IsDefined("admin", "token") {
		cfg.Admin.Token = strings.TrimSpace(raw.Admin.Token)
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "file") {
		cfg.Log.File = strings.TrimSpace(raw.Log.File)
	}
	if meta.IsDefined("log", "max_size_mb") {
		cfg.Log.MaxSizeMB = raw.Log.MaxSizeMB
	}
	if meta.IsDefined("log", "max_backups") {
		cfg.Log.MaxBackups = raw.Log.MaxBackups
	}
	if meta.IsDefined("log", "no_color") {
		cfg.Log.NoColor = raw.Log.NoColor
	}

	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Machine.Address) == "" {
		return fmt.Errorf("machine.address is required")
	}
	if _, err := parseTick(cfg.Machine.Tick); err != nil {
		return err
	}
	if cfg.Modem.MaxPacketSize <= 0 {
		return fmt.Errorf("modem.max_packet_size must be positive")
	}
	if cfg.Modem.MaxArguments <= 0 {
		return fmt.Errorf("modem.max_arguments must be positive")
	}
	if cfg.Modem.SystemPort < protocol.MinPort || cfg.Modem.SystemPort > protocol.MaxPort {
		return fmt.Errorf("modem.system_port out of range: %d", cfg.Modem.SystemPort)
	}
	for i, port := range cfg.Modem.OpenPorts {
		if err := protocol.ValidatePort(port); err != nil {
			return fmt.Errorf("modem.open_ports[%d]: %w", i, err)
		}
	}
	if listen := strings.TrimSpace(cfg.Relay.Listen); listen != "" {
		if _, _, err := net.SplitHostPort(listen); err != nil {
			return fmt.Errorf("relay.listen invalid: %w", err)
		}
	}
	if listen := strings.TrimSpace(cfg.Admin.Listen); listen != "" {
		if _, _, err := net.SplitHostPort(listen); err != nil {
			return fmt.Errorf("admin.listen invalid: %w", err)
		}
	}
	if _, ok := logging.ParseLevel(cfg.Log.Level); !ok {
		return fmt.Errorf("log.level unknown: %q", cfg.Log.Level)
	}
	if cfg.Log.MaxSizeMB < 0 || cfg.Log.MaxBackups < 0 {
		return fmt.Errorf("log rotation values must not be negative")
	}
	return nil
}

// Save renders cfg and writes it only when the file content would change.
func Save(path string, cfg Config) (bool, error) {
	if err := Validate(cfg); err != nil {
		return false, err
	}
	data, err := gotoml.Marshal(cfg)
	if err != nil {
		return false, fmt.Errorf("config render failed: %w", err)
	}
	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, data) {
		return false, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("config read failed (%s): %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return false, fmt.Errorf("config write failed (%s): %w", path, err)
	}
	return true, nil
}

// TickInterval is the parsed machine tick; Validate guarantees it parses.
func (c Config) TickInterval() time.Duration {
	d, _ := parseTick(c.Machine.Tick)
	return d
}

func (c Config) Limits() protocol.Limits {
	return protocol.Limits{
		MaxPacketSize: c.Modem.MaxPacketSize,
		MaxArguments:  c.Modem.MaxArguments,
	}
}

// RelayAddr is where the modem driver dials.
func (c Config) RelayAddr() string {
	return net.JoinHostPort(c.Modem.RelayHost, strconv.Itoa(c.Modem.SystemPort))
}

// ModemName defaults to the machine address.
func (c Config) ModemName() string {
	if name := strings.TrimSpace(c.Modem.Name); name != "" {
		return name
	}
	return c.Machine.Address
}

func (c LogConfig) Logging(profile logging.Profile) logging.Config {
	out := logging.DefaultConfig(profile)
	if lvl, ok := logging.ParseLevel(c.Level); ok {
		out.Level = lvl
	}
	out.File = c.File
	out.NoColor = c.NoColor
	if c.MaxSizeMB > 0 {
		out.MaxSizeMB = c.MaxSizeMB
	}
	if c.MaxBackups > 0 {
		out.MaxBackups = c.MaxBackups
	}
	logging.ApplyEnv(&out)
	return out
}

func parseTick(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("machine.tick invalid: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("machine.tick must be positive")
	}
	return d, nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
