package webmod

import (
	"fmt"
	"strings"
	"time"
)

// Config holds every setting consumed by the pipeline, the HTTP server and
// the CLI. Zero values are replaced by the `default` tags before feeders
// run, so files and the environment only need to mention what they change.
type Config struct {
	Server         ServerConfig      `yaml:"server" toml:"server" json:"server"`
	Limits         LimitsConfig      `yaml:"limits" toml:"limits" json:"limits"`
	RequestTimeout time.Duration     `yaml:"request_timeout" toml:"request_timeout" json:"request_timeout" env:"REQUEST_TIMEOUT" default:"0s" desc:"Per-request handler deadline; 0 disables it"`
	Compression    CompressionConfig `yaml:"compression" toml:"compression" json:"compression"`
	Parsing        ParsingConfig     `yaml:"parsing" toml:"parsing" json:"parsing"`
	Metrics        MetricsConfig     `yaml:"metrics" toml:"metrics" json:"metrics"`
	Log            LogConfig         `yaml:"log" toml:"log" json:"log"`
}

// ServerConfig configures the listener and shutdown behaviour.
type ServerConfig struct {
	Host              string        `yaml:"host" toml:"host" json:"host" env:"HOST" default:"0.0.0.0" desc:"Address to bind"`
	Port              int           `yaml:"port" toml:"port" json:"port" env:"PORT" default:"8080" desc:"Port to listen on"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" toml:"read_header_timeout" json:"read_header_timeout" env:"READ_HEADER_TIMEOUT" default:"10s" desc:"Time allowed to read request headers"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" toml:"idle_timeout" json:"idle_timeout" env:"IDLE_TIMEOUT" default:"120s" desc:"Keep-alive idle timeout"`
	GracefulShutdown  bool          `yaml:"graceful_shutdown" toml:"graceful_shutdown" json:"graceful_shutdown" env:"GRACEFUL_SHUTDOWN" default:"true" desc:"Drain in-flight requests before exiting"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout" json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" default:"30s" desc:"Grace period for draining"`
	H2C               bool          `yaml:"h2c" toml:"h2c" json:"h2c" env:"H2C" default:"false" desc:"Serve cleartext HTTP/2"`
}

// LimitsConfig bounds the size of what a client may send.
type LimitsConfig struct {
	MaxHeaderBytes int   `yaml:"max_header_bytes" toml:"max_header_bytes" json:"max_header_bytes" env:"MAX_HEADER_BYTES" default:"8192" desc:"Total bytes of all header lines"`
	MaxHeaderCount int   `yaml:"max_header_count" toml:"max_header_count" json:"max_header_count" env:"MAX_HEADER_COUNT" default:"100" desc:"Number of header lines"`
	MaxURILength   int   `yaml:"max_uri_length" toml:"max_uri_length" json:"max_uri_length" env:"MAX_URI_LENGTH" default:"8192" desc:"Length of the request target"`
	MaxBodySize    int64 `yaml:"max_body_size" toml:"max_body_size" json:"max_body_size" env:"MAX_BODY_SIZE" default:"1048576" desc:"Bytes of request body"`
}

// CompressionConfig controls response compression.
type CompressionConfig struct {
	Enabled      bool     `yaml:"enabled" toml:"enabled" json:"enabled" env:"COMPRESSION_ENABLED" default:"true" desc:"Compress eligible responses"`
	MinSize      int      `yaml:"min_size" toml:"min_size" json:"min_size" env:"COMPRESSION_MIN_SIZE" default:"1024" desc:"Smallest body worth compressing"`
	ContentTypes []string `yaml:"content_types" toml:"content_types" json:"content_types" env:"COMPRESSION_CONTENT_TYPES" default:"text/html,text/plain,text/css,text/csv,application/json,application/javascript,application/xml,image/svg+xml" desc:"Media types eligible for compression"`
}

// ParsingConfig toggles optional request parsing.
type ParsingConfig struct {
	Cookies   bool `yaml:"cookies" toml:"cookies" json:"cookies" env:"PARSE_COOKIES" default:"true" desc:"Parse the Cookie header"`
	Multipart bool `yaml:"multipart" toml:"multipart" json:"multipart" env:"PARSE_MULTIPART" default:"true" desc:"Parse multipart/form-data bodies"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled" json:"enabled" env:"METRICS_ENABLED" default:"true" desc:"Expose Prometheus metrics"`
	Path      string `yaml:"path" toml:"path" json:"path" env:"METRICS_PATH" default:"/metrics" desc:"Metrics endpoint path"`
	Namespace string `yaml:"namespace" toml:"namespace" json:"namespace" env:"METRICS_NAMESPACE" default:"webmod" desc:"Metric name prefix"`
}

// LogConfig selects the slog handler built by the CLI.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level" json:"level" env:"LOG_LEVEL" default:"info" desc:"debug, info, warn or error"`
	Format string `yaml:"format" toml:"format" json:"format" env:"LOG_FORMAT" default:"text" desc:"text or json"`
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	if err := ProcessConfigDefaults(cfg); err != nil {
		panic(fmt.Sprintf("invalid config defaults: %v", err))
	}
	return cfg
}

// Address is the listen address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate implements ConfigValidator.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.ShutdownTimeout < 0 {
		problems = append(problems, "server.shutdown_timeout must not be negative")
	}
	if c.Limits.MaxHeaderBytes <= 0 {
		problems = append(problems, "limits.max_header_bytes must be positive")
	}
	if c.Limits.MaxHeaderCount <= 0 {
		problems = append(problems, "limits.max_header_count must be positive")
	}
	if c.Limits.MaxURILength <= 0 {
		problems = append(problems, "limits.max_uri_length must be positive")
	}
	if c.Limits.MaxBodySize <= 0 {
		problems = append(problems, "limits.max_body_size must be positive")
	}
	if c.RequestTimeout < 0 {
		problems = append(problems, "request_timeout must not be negative")
	}
	if c.Compression.MinSize < 0 {
		problems = append(problems, "compression.min_size must not be negative")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		problems = append(problems, "metrics.path must start with /")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q must be text or json", c.Log.Format))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigValidationFailed, strings.Join(problems, "; "))
	}
	return nil
}
