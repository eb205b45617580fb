package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full container configuration.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Auth      AuthConfig
	Geoloc    GeolocConfig
	Sync      SyncConfig
	Telemetry TelemetryConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// LogConfig holds application and audit logging settings.
type LogConfig struct {
	Level    string
	Encoding string
	AuditDir string `mapstructure:"audit_dir"`
}

// AuthConfig holds JWT verification settings.
type AuthConfig struct {
	Enabled      bool
	Algorithm    string
	SecretKey    string `mapstructure:"secret_key"`
	PublicKeyPEM string `mapstructure:"public_key_pem"`
	JWKSURL      string `mapstructure:"jwks_url"`
}

// GeolocConfig holds location acquisition defaults. Per-request options
// override these; zero-valued request options inherit them.
type GeolocConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
	MaximumAge     time.Duration `mapstructure:"maximum_age"`
	MinDistanceM   float64       `mapstructure:"min_distance_m"`
	HighAccuracy   bool          `mapstructure:"high_accuracy"`
}

// SyncConfig holds the source synchronization settings.
type SyncConfig struct {
	BaseURL     string   `mapstructure:"base_url"`
	Sources     []string `mapstructure:"sources"`
	Interval    time.Duration
	Attempts    uint
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
}

// TelemetryConfig holds event stream settings.
type TelemetryConfig struct {
	EventBufferSize   int           `mapstructure:"event_buffer_size"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatJitter   time.Duration `mapstructure:"heartbeat_jitter"`
}

// Load merges defaults + optional config file + DSC_* env overrides, then
// validates the result.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("toml")
	if path := os.Getenv("DSC_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("dsc")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/dsc")
	}

	v.SetEnvPrefix("DSC")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Config file is optional; defaults plus env are a valid configuration.
	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the baseline configuration without file or env overrides.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// Defaults are statically well-formed; unmarshal cannot fail here.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8090")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.audit_dir", "logs")

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.algorithm", "HS256")
	v.SetDefault("auth.secret_key", "")
	v.SetDefault("auth.public_key_pem", "")
	v.SetDefault("auth.jwks_url", "")

	v.SetDefault("geoloc.poll_interval", 15*time.Second)
	v.SetDefault("geoloc.acquire_timeout", 10*time.Second)
	v.SetDefault("geoloc.maximum_age", 30*time.Second)
	v.SetDefault("geoloc.min_distance_m", 0.0)
	v.SetDefault("geoloc.high_accuracy", false)

	v.SetDefault("sync.base_url", "")
	v.SetDefault("sync.sources", []string{"contacts"})
	v.SetDefault("sync.interval", 5*time.Minute)
	v.SetDefault("sync.attempts", 3)
	v.SetDefault("sync.http_timeout", 30*time.Second)

	v.SetDefault("telemetry.event_buffer_size", 50)
	v.SetDefault("telemetry.heartbeat_interval", 15*time.Second)
	v.SetDefault("telemetry.heartbeat_jitter", 2*time.Second)
}
