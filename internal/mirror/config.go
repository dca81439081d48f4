package mirror

import (
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	defaultHost      = "127.0.0.1"
	defaultPort      = 5555
	defaultThreshold = 3
)

// FailureMode selects how requests for broken files fail.
type FailureMode int

// Failure modes. The short names "404", "broken" and "lazy"
// are accepted as aliases.
const (
	FailureNone FailureMode = iota
	FailureNotFound
	FailureCorrupt
	FailureLazy
)

// ParseFailureMode parses a failure mode name.
func ParseFailureMode(s string) (FailureMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return FailureNone, nil
	case "not-found", "404":
		return FailureNotFound, nil
	case "corrupt", "broken":
		return FailureCorrupt, nil
	case "lazy-retry", "lazy":
		return FailureLazy, nil
	}
	return FailureNone, errors.Newf("unknown failure mode %q", s)
}

func (m FailureMode) String() string {
	switch m {
	case FailureNotFound:
		return "not-found"
	case FailureCorrupt:
		return "corrupt"
	case FailureLazy:
		return "lazy-retry"
	}
	return "none"
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *FailureMode) UnmarshalText(text []byte) error {
	mode, err := ParseFailureMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (m FailureMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// FailureConfig configures failure injection.
type FailureConfig struct {
	Mode FailureMode `toml:"mode" yaml:"mode"`
	// Broken lists the file names subject to Mode.
	Broken []string `toml:"broken" yaml:"broken"`
	// Threshold is the attempt that succeeds in lazy-retry mode.
	Threshold int `toml:"threshold" yaml:"threshold"`
	// HarmKeyword selects which file names get corrupted. Empty matches all.
	HarmKeyword string `toml:"harm_keyword" yaml:"harm_keyword"`
	// Overrides assigns a failure mode to individual file names.
	Overrides map[string]FailureMode `toml:"overrides,omitempty" yaml:"overrides,omitempty"`
}

// AuthConfig holds HTTP Basic credentials. Both empty disables the check.
type AuthConfig struct {
	Username string `toml:"username" yaml:"username"`
	Password string `toml:"password" yaml:"password"`
}

// GrowingConfig configures the growing file.
type GrowingConfig struct {
	// Content is the path of the seed corpus.
	Content string `toml:"content" yaml:"content"`
	// Source is "seed" or "random". Empty means "seed".
	Source string `toml:"source" yaml:"source"`
	// Output is embedded in the artifact name gf<output><ext>.
	Output          string `toml:"output" yaml:"output"`
	Compressor      string `toml:"compressor" yaml:"compressor"`
	DeltaTool       string `toml:"delta_tool" yaml:"delta_tool"`
	InitialExponent int    `toml:"initial_exponent" yaml:"initial_exponent"`
	RandomSeed      uint64 `toml:"random_seed" yaml:"random_seed"`
}

// Enabled reports whether the growing file endpoints are configured.
func (gc *GrowingConfig) Enabled() bool {
	return gc.Content != "" || strings.EqualFold(gc.Source, "random")
}

// Check validates the growing file configuration.
func (gc *GrowingConfig) Check() error {
	switch strings.ToLower(gc.Source) {
	case "", "seed":
		if gc.Content != "" {
			if _, err := os.Stat(gc.Content); err != nil {
				return errors.Wrap(err, "content")
			}
		}
	case "random":
	default:
		return errors.New("unknown growing source: " + gc.Source)
	}
	switch strings.ToLower(gc.Compressor) {
	case "", "xz", "zck":
	default:
		return errors.New("unknown compressor: " + gc.Compressor)
	}
	switch strings.ToLower(gc.DeltaTool) {
	case "", "builtin", "zck":
	default:
		return errors.New("unknown delta tool: " + gc.DeltaTool)
	}
	if strings.ContainsAny(gc.Output, `/\`) {
		return errors.New("output must be a file name: " + gc.Output)
	}
	return nil
}

// SigningConfig enables detached OpenPGP signatures of served assets.
type SigningConfig struct {
	// KeyPath is an armored, unlocked private key.
	KeyPath string `toml:"key_path" yaml:"key_path"`
}

// LogConfig represents slog configuration options
type LogConfig struct {
	Level     string `toml:"level" yaml:"level"`
	Format    string `toml:"format" yaml:"format"`
	AddSource bool   `toml:"add_source" yaml:"add_source"`
}

// Apply configures the global slog logger based on the configuration
func (logConfig *LogConfig) Apply() error {
	var level slog.Level
	switch strings.ToLower(logConfig.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return errors.New("invalid log level: " + logConfig.Level)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level, AddSource: logConfig.AddSource}

	switch strings.ToLower(logConfig.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "plain", "", "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return errors.New("invalid log format: " + logConfig.Format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// Config is the server configuration.
//
// Use https://github.com/BurntSushi/toml as follows:
//
//	config := mirror.NewConfig()
//	md, err := toml.DecodeFile("/path/to/mockmirror.toml", config)
//	if err != nil {
//	    ...
//	}
type Config struct {
	Host string `toml:"host" yaml:"host"`
	Port int    `toml:"port" yaml:"port"`
	// Root is the directory holding the static/ tree.
	Root string `toml:"root" yaml:"root"`

	Failures FailureConfig `toml:"failures" yaml:"failures"`
	Auth     AuthConfig    `toml:"auth" yaml:"auth"`
	Growing  GrowingConfig `toml:"growing" yaml:"growing"`
	Signing  SigningConfig `toml:"signing" yaml:"signing"`
	Log      LogConfig     `toml:"log" yaml:"log"`
}

// NewConfig creates Config with default values.
func NewConfig() *Config {
	return &Config{
		Host: defaultHost,
		Port: defaultPort,
		Root: ".",
		Failures: FailureConfig{
			Threshold: defaultThreshold,
		},
	}
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Check validates the configuration.
func (c *Config) Check() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.Newf("port %d out of range", c.Port)
	}
	if c.Root == "" {
		return errors.New("root is not set")
	}
	st, err := os.Stat(c.Root)
	if err != nil {
		return errors.Wrap(err, "root")
	}
	if !st.IsDir() {
		return errors.New("root is not a directory: " + c.Root)
	}
	if c.Failures.Threshold < 1 {
		return errors.Newf("failure threshold must be at least 1, got %d", c.Failures.Threshold)
	}
	for name := range c.Failures.Overrides {
		if name == "" || strings.Contains(name, "/") {
			return errors.New("override must be a file name: " + name)
		}
	}
	if err := c.Growing.Check(); err != nil {
		return errors.Wrap(err, "growing")
	}
	if c.Signing.KeyPath != "" {
		if _, err := os.Stat(c.Signing.KeyPath); err != nil {
			return errors.Wrap(err, "signing key")
		}
	}
	return nil
}
