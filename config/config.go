package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/dispatch-server/internal/strategy"
)

// FileName is looked up in the config directory.
const FileName = "http-server.toml"

// EnvPrefix namespaces environment overrides, e.g. DISPATCH_SERVER_BIND_PORT.
const EnvPrefix = "DISPATCH"

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Route kinds.
const (
	KindPage   = "page"
	KindStatic = "static"
	KindProxy  = "proxy"
	KindDeny   = "deny"
)

// Fallback formats.
const (
	FormatText = "text"
	FormatHTML = "html"
)

// DefaultFile is written to the config directory when no file exists.
const DefaultFile = `# HTTP server configuration

[server]
bind_address = "127.0.0.1"
bind_port = 8080
num_workers = 4

[logging]
level = "info"

[fallback]
format = "text"

[[routes]]
name = "home"
kind = "page"
path = "/"
content = "<h1>It works</h1>"
`

type ServerConfig struct {
	BindAddress          string        `mapstructure:"bind_address"`
	BindPort             int           `mapstructure:"bind_port"`
	NumWorkers           int           `mapstructure:"num_workers"`
	MaxInflightPerWorker int           `mapstructure:"max_inflight_per_worker"`
	Environment          string        `mapstructure:"environment"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout"`
	IdleTimeout          time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout      time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.BindAddress, strconv.Itoa(s.BindPort))
}

// MaxInFlight is the admission limit: workers times per-worker in-flight
// requests.
func (s ServerConfig) MaxInFlight() int64 {
	return int64(s.NumWorkers) * int64(s.MaxInflightPerWorker)
}

type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	AddSource bool   `mapstructure:"add_source"`
}

type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	BufferSize int    `mapstructure:"buffer_size"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Threshold    int           `mapstructure:"threshold"`
	ResetTimeout time.Duration `mapstructure:"reset_timeout"`
}

type HealthCheckConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type FallbackConfig struct {
	Format string `mapstructure:"format"`
}

// RouteConfig describes one dispatch candidate. Which fields apply depends on
// Kind.
type RouteConfig struct {
	Name        string   `mapstructure:"name"`
	Kind        string   `mapstructure:"kind"`
	Path        string   `mapstructure:"path"`
	Prefix      string   `mapstructure:"prefix"`
	Content     string   `mapstructure:"content"`
	ContentType string   `mapstructure:"content_type"`
	Root        string   `mapstructure:"root"`
	Upstreams   []string `mapstructure:"upstreams"`
	// Weights pairs with Upstreams by index. Empty means every weight is 1.
	Weights      []int    `mapstructure:"weights"`
	Strategy     string   `mapstructure:"strategy"`
	VirtualNodes int      `mapstructure:"virtual_nodes"`
	Status       int      `mapstructure:"status"`
	Methods      []string `mapstructure:"methods"`
}

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Metrics        MetricsConfig        `mapstructure:"metrics"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	HealthCheck    HealthCheckConfig    `mapstructure:"health_check"`
	Fallback       FallbackConfig       `mapstructure:"fallback"`
	Routes         []RouteConfig        `mapstructure:"routes"`
}

// Load reads FileName from configDir, creating it from DefaultFile first if it
// does not exist.
func Load(configDir string) (*Config, error) {
	path := filepath.Join(configDir, FileName)

	created, err := ensureFile(path)
	if err != nil {
		slog.Error("failed to create default config", slog.String("file", path), slog.String("error", err.Error()))
		return nil, err
	}
	if created {
		slog.Warn("config file not found, wrote defaults", slog.String("file", path))
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		slog.Error("failed to read config file", slog.String("error", err.Error()))
		return nil, err
	}
	slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.bind_address", "127.0.0.1")
	v.SetDefault("server.bind_port", 8080)
	v.SetDefault("server.num_workers", 4)
	v.SetDefault("server.max_inflight_per_worker", 256)
	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("logging.add_source", false)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.buffer_size", 1024)
	v.SetDefault("circuit_breaker.enabled", false)
	v.SetDefault("circuit_breaker.threshold", 5)
	v.SetDefault("circuit_breaker.reset_timeout", 30*time.Second)
	v.SetDefault("health_check.interval", 2*time.Second)
	v.SetDefault("fallback.format", FormatText)
}

func ensureFile(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	if err := os.WriteFile(path, []byte(DefaultFile), 0o644); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.BindAddress, is.Host),
					validation.Field(&sc.BindPort, validation.Required, validation.Min(1), validation.Max(65535)),
					validation.Field(&sc.NumWorkers, validation.Required, validation.Min(1)),
					validation.Field(&sc.MaxInflightPerWorker, validation.Required, validation.Min(1)),
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.ReadTimeout, validation.Required, validation.Min(time.Millisecond)),
					validation.Field(&sc.WriteTimeout, validation.Required, validation.Min(time.Millisecond)),
					validation.Field(&sc.IdleTimeout, validation.Required, validation.Min(time.Millisecond)),
					validation.Field(&sc.ShutdownTimeout, validation.Required, validation.Min(time.Millisecond)),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.Metrics,
			validation.By(func(value interface{}) error {
				mc, ok := value.(MetricsConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a MetricsConfig")
				}
				return validation.ValidateStruct(&mc,
					validation.Field(&mc.Path, validation.When(mc.Enabled, validation.Required, validation.By(absolutePath))),
					validation.Field(&mc.BufferSize, validation.When(mc.Enabled, validation.Required, validation.Min(1))),
				)
			}),
		),
		validation.Field(&c.CircuitBreaker,
			validation.By(func(value interface{}) error {
				cb, ok := value.(CircuitBreakerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a CircuitBreakerConfig")
				}
				return validation.ValidateStruct(&cb,
					validation.Field(&cb.Threshold, validation.When(cb.Enabled, validation.Required, validation.Min(1))),
					validation.Field(&cb.ResetTimeout, validation.When(cb.Enabled, validation.Required, validation.Min(time.Millisecond))),
				)
			}),
		),
		validation.Field(&c.HealthCheck,
			validation.Required,
			validation.By(func(value interface{}) error {
				hc, ok := value.(HealthCheckConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a HealthCheckConfig")
				}
				return validation.ValidateStruct(&hc,
					validation.Field(&hc.Interval, validation.Required, validation.Min(10*time.Millisecond)),
				)
			}),
		),
		validation.Field(&c.Fallback,
			validation.By(func(value interface{}) error {
				fc, ok := value.(FallbackConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a FallbackConfig")
				}
				return validation.ValidateStruct(&fc,
					validation.Field(&fc.Format, validation.Required, validation.In(FormatText, FormatHTML)),
				)
			}),
		),
		validation.Field(&c.Routes),
	)
	if err != nil {
		return err
	}

	return uniqueRouteNames(c.Routes)
}

// Validate checks the fields required by the route's kind.
func (r RouteConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required),
		validation.Field(&r.Kind, validation.Required, validation.In(KindPage, KindStatic, KindProxy, KindDeny)),
		validation.Field(&r.Path, validation.When(r.Kind == KindPage, validation.Required, validation.By(absolutePath))),
		validation.Field(&r.Prefix,
			validation.When(r.Kind == KindStatic || r.Kind == KindProxy || r.Kind == KindDeny,
				validation.Required, validation.By(absolutePath)),
		),
		validation.Field(&r.Root, validation.When(r.Kind == KindStatic, validation.Required)),
		validation.Field(&r.Upstreams,
			validation.When(r.Kind == KindProxy, validation.Required, validation.Each(validation.By(validateUpstreamURL))),
		),
		validation.Field(&r.Weights,
			validation.When(len(r.Weights) > 0,
				validation.Length(len(r.Upstreams), len(r.Upstreams)).Error("must have one weight per upstream"),
				validation.Each(validation.Min(1)),
			),
		),
		validation.Field(&r.Strategy, validation.In(strategyNames()...)),
		validation.Field(&r.VirtualNodes, validation.Min(0)),
		validation.Field(&r.Status,
			validation.When(r.Status != 0, validation.Min(400), validation.Max(599)),
			validation.When(r.Kind == KindDeny, validation.NotIn(http.StatusNotFound).Error("404 would make the route a miss")),
		),
		validation.Field(&r.Methods, validation.Each(validation.Required)),
	)
}

func strategyNames() []interface{} {
	names := make([]interface{}, len(strategy.Names))
	for i, n := range strategy.Names {
		names[i] = n
	}
	return names
}

func uniqueRouteNames(routes []RouteConfig) error {
	seen := make(map[string]int, len(routes))
	for i, r := range routes {
		if j, ok := seen[r.Name]; ok {
			return validation.Errors{
				"routes": validation.NewError("validation_duplicate_route",
					fmt.Sprintf("route %q at %d duplicates route at %d", r.Name, i, j)),
			}
		}
		seen[r.Name] = i
	}
	return nil
}

func absolutePath(value interface{}) error {
	p, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}
	if p != "" && !strings.HasPrefix(p, "/") {
		return validation.NewError("validation_invalid_path", "must start with /")
	}
	return nil
}

func validateUpstreamURL(value interface{}) error {
	raw, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if err := is.URL.Validate(raw); err != nil || raw == "" {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	return nil
}
