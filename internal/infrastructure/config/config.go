package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Browser       BrowserConfig       `mapstructure:"browser"`
	Captcha       CaptchaConfig       `mapstructure:"captcha"`
	Services      ServicesConfig      `mapstructure:"services"`
	Reporting     ReportingConfig     `mapstructure:"reporting"`
	Artifacts     ArtifactsConfig     `mapstructure:"artifacts"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Automation    AutomationConfig    `mapstructure:"automation"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	PublicURL       string        `mapstructure:"public_url"`
	DefaultRedirect string        `mapstructure:"default_redirect"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RateLimit caps transaction requests per caller IP and minute. Zero
	// disables the limit.
	RateLimit       int           `mapstructure:"rate_limit"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// AuthConfig holds the shared-secret header check and the caller allow-list.
type AuthConfig struct {
	Header     string   `mapstructure:"header"`
	Token      string   `mapstructure:"token"`
	IPFilter   bool     `mapstructure:"ip_filter"`
	AllowedIPs []string `mapstructure:"allowed_ips"`
}

type BrowserConfig struct {
	Bin               string        `mapstructure:"bin"`
	Headless          bool          `mapstructure:"headless"`
	Proxy             string        `mapstructure:"proxy"`
	UserAgent         string        `mapstructure:"user_agent"`
	Flags             []string      `mapstructure:"flags"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	StageTimeout      time.Duration `mapstructure:"stage_timeout"`
	MaxSessions       int64         `mapstructure:"max_sessions"`
}

type CaptchaConfig struct {
	APIKey                  string        `mapstructure:"api_key"`
	BaseURL                 string        `mapstructure:"base_url"`
	RequestTimeout          time.Duration `mapstructure:"request_timeout"`
	PollDelay               time.Duration `mapstructure:"poll_delay"`
	NotReadyBackoff         time.Duration `mapstructure:"not_ready_backoff"`
	SettleDelay             time.Duration `mapstructure:"settle_delay"`
	MaxAttempts             int           `mapstructure:"max_attempts"`
	MinLen                  int           `mapstructure:"min_len"`
	MaxLen                  int           `mapstructure:"max_len"`
	CircuitBreakerThreshold uint32        `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
}

// ServicesConfig holds the remote pages driven by the flows.
type ServicesConfig struct {
	BillAURL       string `mapstructure:"bill_a_url"`
	BillBURL       string `mapstructure:"bill_b_url"`
	BillANextHost  string `mapstructure:"bill_a_next_host"`
	OTPVisibleHost string `mapstructure:"otp_visible_host"`
	ReceiptHost    string `mapstructure:"receipt_host"`
}

type ReportingConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts uint          `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`

	// ReplayInterval is how often the worker drains the dead-letter stream.
	ReplayInterval time.Duration `mapstructure:"replay_interval"`
}

type ArtifactsConfig struct {
	Dir               string `mapstructure:"dir"`
	ScreenshotsSubdir string `mapstructure:"screenshots_subdir"`
	InvoicesSubdir    string `mapstructure:"invoices_subdir"`
}

type RedisConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
}

type AutomationConfig struct {
	FlowTimeout time.Duration `mapstructure:"flow_timeout"`
	// OTPDelay is how long the OTP flow waits after submitting before it
	// looks for the error banner.
	OTPDelay time.Duration `mapstructure:"otp_delay"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("EPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read from config file if exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/epayrobot")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if _, err := url.ParseRequestURI(c.Server.PublicURL); err != nil {
		errs = append(errs, fmt.Errorf("server.public_url must be an absolute url"))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit must not be negative"))
	}
	if c.Auth.Header == "" {
		errs = append(errs, fmt.Errorf("auth.header is required"))
	}
	if c.Browser.NavigationTimeout <= 0 {
		errs = append(errs, fmt.Errorf("browser.navigation_timeout must be positive"))
	}
	if c.Browser.StageTimeout <= 0 {
		errs = append(errs, fmt.Errorf("browser.stage_timeout must be positive"))
	}
	if c.Browser.MaxSessions <= 0 {
		errs = append(errs, fmt.Errorf("browser.max_sessions must be positive"))
	}
	if c.Captcha.PollDelay < 0 || c.Captcha.NotReadyBackoff < 0 || c.Captcha.SettleDelay < 0 {
		errs = append(errs, fmt.Errorf("captcha delays must not be negative"))
	}
	if c.Captcha.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("captcha.max_attempts must be positive"))
	}
	if c.Services.BillAURL == "" || c.Services.BillBURL == "" {
		errs = append(errs, fmt.Errorf("services.bill_a_url and services.bill_b_url are required"))
	}
	if c.Artifacts.Dir == "" {
		errs = append(errs, fmt.Errorf("artifacts.dir is required"))
	}
	if c.Automation.FlowTimeout <= 0 {
		errs = append(errs, fmt.Errorf("automation.flow_timeout must be positive"))
	}
	if c.Automation.OTPDelay < 0 {
		errs = append(errs, fmt.Errorf("automation.otp_delay must not be negative"))
	}
	if c.Redis.Enabled {
		if c.Redis.Port <= 0 {
			errs = append(errs, fmt.Errorf("redis.port must be positive"))
		}
		if c.Redis.LockTTL <= 0 {
			errs = append(errs, fmt.Errorf("redis.lock_ttl must be positive"))
		}
	}

	// Production environment checks
	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Auth.Token == "" {
			errs = append(errs, fmt.Errorf("auth.token required in production"))
		}
		if c.Captcha.APIKey == "" {
			errs = append(errs, fmt.Errorf("captcha.api_key required in production"))
		}
		if c.Reporting.BaseURL == "" {
			errs = append(errs, fmt.Errorf("reporting.base_url required in production"))
		}
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.public_url", "http://127.0.0.1:3000")
	v.SetDefault("server.default_redirect", "https://slick-pay.com")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "5m")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.rate_limit", 60)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Auth defaults
	v.SetDefault("auth.header", "x-slickpay")
	v.SetDefault("auth.ip_filter", false)
	v.SetDefault("auth.allowed_ips", []string{})

	// Browser defaults
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.stage_timeout", "30s")
	v.SetDefault("browser.max_sessions", 4)

	// Captcha defaults
	v.SetDefault("captcha.base_url", "https://2captcha.com")
	v.SetDefault("captcha.request_timeout", "30s")
	v.SetDefault("captcha.poll_delay", "10s")
	v.SetDefault("captcha.not_ready_backoff", "5s")
	v.SetDefault("captcha.settle_delay", "1s")
	v.SetDefault("captcha.max_attempts", 10)
	v.SetDefault("captcha.min_len", 6)
	v.SetDefault("captcha.max_len", 6)
	v.SetDefault("captcha.circuit_breaker_threshold", 5)
	v.SetDefault("captcha.circuit_breaker_timeout", "30s")

	// Services defaults
	v.SetDefault("services.bill_a_url", "https://epayement.elit.dz/payementFacture.xhtml")
	v.SetDefault("services.bill_b_url", "https://fatourati.seaal.dz")
	v.SetDefault("services.bill_a_next_host", "cib.satim.dz")
	v.SetDefault("services.otp_visible_host", "epay.poste.dz")
	v.SetDefault("services.receipt_host", "epayement.elit.dz")

	// Reporting defaults
	v.SetDefault("reporting.base_url", "http://127.0.0.1:8000/")
	v.SetDefault("reporting.timeout", "10s")
	v.SetDefault("reporting.max_attempts", 3)
	v.SetDefault("reporting.retry_delay", "1s")
	v.SetDefault("reporting.replay_interval", "1m")

	// Artifacts defaults
	v.SetDefault("artifacts.dir", "./storage")
	v.SetDefault("artifacts.screenshots_subdir", "screenshots")
	v.SetDefault("artifacts.invoices_subdir", "invoices")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")
	v.SetDefault("redis.lock_ttl", "5m")

	// Automation defaults
	v.SetDefault("automation.flow_timeout", "4m")
	v.SetDefault("automation.otp_delay", "10s")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)

	// Instance ID
	v.SetDefault("instance_id", "epayrobot-1")
}

// Addr is the listen address of the HTTP server.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
