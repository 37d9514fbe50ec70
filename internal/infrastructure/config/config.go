package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the deskpilot.yaml document.
type Config struct {
	// EnvFile is a dotenv file merged into the environment before the
	// DESKPILOT_* overrides are read. Real environment variables win.
	EnvFile string `yaml:"env_file"`

	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Engine    EngineConfig    `yaml:"engine"`
	Browser   BrowserConfig   `yaml:"browser"`
	Functions FunctionsConfig `yaml:"functions"`
	Secrets   SecretsConfig   `yaml:"secrets"`
}

// DatabaseConfig locates the SQLite name table. BusyTimeout is in seconds.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig enables remote triggers and event fan-out over a broker.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig delays are in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig configures the local trigger and cache API.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`

	// PublicURL is the base URL spreadsheet query files point at.
	// Defaults to http://localhost:<port>.
	PublicURL string `yaml:"public_url"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig values are in seconds. Write must cover the longest
// run a caller waits on.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig with no origins allows any origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig tunes the event stream keepalive (seconds).
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig enables run summaries as time series.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// EngineConfig drives the action script interpreter.
type EngineConfig struct {
	// DataDir receives http_get downloads and spreadsheet query files.
	DataDir string `yaml:"data_dir"`

	// ScriptDirs are searched in order for <name>.json scripts.
	ScriptDirs []string `yaml:"script_dirs"`

	// AppsFile is the YAML file of app shortcuts.
	AppsFile string `yaml:"apps_file"`

	// HTTPTimeout bounds each http_get request (seconds).
	HTTPTimeout int `yaml:"http_timeout"`

	// MaxDepth caps nested actions steps.
	MaxDepth int `yaml:"max_depth"`

	// Templates maps a request host to its URL and header templates.
	Templates map[string]HostTemplateConfig `yaml:"templates"`
}

// TemplateConfig is a format string filled from resolver names.
type TemplateConfig struct {
	Format string   `yaml:"format"`
	Refs   []string `yaml:"refs"`
}

// HostTemplateConfig holds the templates for one host.
type HostTemplateConfig struct {
	URL     *TemplateConfig           `yaml:"url"`
	Headers map[string]TemplateConfig `yaml:"headers"`
}

// BrowserConfig drives the browser pool and step player.
type BrowserConfig struct {
	Executable     string `yaml:"executable"`
	UserDataDir    string `yaml:"user_data_dir"`
	Headless       bool   `yaml:"headless"`
	Devtools       bool   `yaml:"devtools"`
	StartPort      int    `yaml:"start_port"`
	MaxPort        int    `yaml:"max_port"`
	ReuseInstances bool   `yaml:"reuse_instances"`
	InstallDriver  bool   `yaml:"install_driver"`

	// Timeouts in seconds.
	ConnectTimeout    int `yaml:"connect_timeout"`
	NavigationTimeout int `yaml:"navigation_timeout"`
	SelectorTimeout   int `yaml:"selector_timeout"`
}

// FunctionsConfig runs python_action scripts. Timeout is in seconds.
type FunctionsConfig struct {
	Interpreter string `yaml:"interpreter"`
	Dir         string `yaml:"dir"`
	Timeout     int    `yaml:"timeout"`
}

// SecretsConfig lists the sources of the global name table.
type SecretsConfig struct {
	// DotenvPath is a KEY=value file of secrets.
	DotenvPath string `yaml:"dotenv_path"`

	// Constants are plain names defined in the config file.
	Constants map[string]string `yaml:"constants"`
}

// Load builds a Config in layers: defaults, then the YAML file at path,
// then the env_file dotenv (never clobbering the real environment), then
// DESKPILOT_* variables. The result is validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.EnvFile != "" {
		err := godotenv.Load(cfg.EnvFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./data/deskpilot.db", WALMode: true, BusyTimeout: 5},
		MQTT: MQTTConfig{
			Broker:    MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "deskpilot"},
			QoS:       1,
			Reconnect: MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 60},
		},
		API: APIConfig{
			Host:     "127.0.0.1",
			Port:     8420,
			Timeouts: APITimeoutConfig{Read: 30, Write: 300, Idle: 60},
		},
		WebSocket: WebSocketConfig{Path: "/ws", MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logging:   LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
		Engine: EngineConfig{
			DataDir:     "./data",
			ScriptDirs:  []string{"./scripts/actions", "./scripts/steps"},
			AppsFile:    "./scripts/apps.yaml",
			HTTPTimeout: 30,
			MaxDepth:    16,
		},
		Browser: BrowserConfig{
			StartPort:         9222,
			ConnectTimeout:    30,
			NavigationTimeout: 30,
			SelectorTimeout:   5,
		},
		Functions: FunctionsConfig{Interpreter: "python3", Dir: "./scripts/functions", Timeout: 300},
	}
}

// envOverrides maps DESKPILOT_* variables onto config fields. Values that
// fail to parse are ignored.
var envOverrides = map[string]func(c *Config, v string){
	"DESKPILOT_DATABASE_PATH":       func(c *Config, v string) { c.Database.Path = v },
	"DESKPILOT_MQTT_HOST":           func(c *Config, v string) { c.MQTT.Broker.Host = v },
	"DESKPILOT_MQTT_USERNAME":       func(c *Config, v string) { c.MQTT.Auth.Username = v },
	"DESKPILOT_MQTT_PASSWORD":       func(c *Config, v string) { c.MQTT.Auth.Password = v },
	"DESKPILOT_API_HOST":            func(c *Config, v string) { c.API.Host = v },
	"DESKPILOT_API_PORT":            func(c *Config, v string) { setInt(&c.API.Port, v) },
	"DESKPILOT_INFLUXDB_TOKEN":      func(c *Config, v string) { c.InfluxDB.Token = v },
	"DESKPILOT_ENGINE_DATA_DIR":     func(c *Config, v string) { c.Engine.DataDir = v },
	"DESKPILOT_BROWSER_EXECUTABLE":  func(c *Config, v string) { c.Browser.Executable = v },
	"DESKPILOT_BROWSER_HEADLESS":    func(c *Config, v string) { setBool(&c.Browser.Headless, v) },
	"DESKPILOT_SECRETS_DOTENV_PATH": func(c *Config, v string) { c.Secrets.DotenvPath = v },
}

func applyEnvOverrides(cfg *Config) {
	for name, apply := range envOverrides {
		if v := os.Getenv(name); v != "" {
			apply(cfg, v)
		}
	}
}

func setInt(dst *int, v string) {
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func setBool(dst *bool, v string) {
	if b, err := strconv.ParseBool(v); err == nil {
		*dst = b
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []string
	check := func(bad bool, msg string, args ...any) {
		if bad {
			errs = append(errs, fmt.Sprintf(msg, args...))
		}
	}

	check(c.Database.Path == "", "database.path is required")
	check(c.MQTT.QoS < 0 || c.MQTT.QoS > 2, "mqtt.qos must be 0, 1, or 2")
	check(!validPort(c.API.Port), "api.port must be between 1 and 65535")

	check(c.Engine.DataDir == "", "engine.data_dir is required")
	check(len(c.Engine.ScriptDirs) == 0, "engine.script_dirs must list at least one directory")
	check(c.Engine.MaxDepth < 1, "engine.max_depth must be at least 1")
	for host, tmpl := range c.Engine.Templates {
		check(tmpl.URL != nil && strings.Count(tmpl.URL.Format, "%s") != len(tmpl.URL.Refs)+1,
			"engine.templates.%s.url: format needs one %%s for the url plus one per ref", host)
		for name, h := range tmpl.Headers {
			check(strings.Count(h.Format, "%s") != len(h.Refs),
				"engine.templates.%s.headers.%s: format needs one %%s per ref", host, name)
		}
	}

	check(!validPort(c.Browser.StartPort), "browser.start_port must be between 1 and 65535")
	check(c.Browser.MaxPort != 0 && c.Browser.MaxPort < c.Browser.StartPort,
		"browser.max_port must not be below browser.start_port")

	check(c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == ""),
		"influxdb.url and influxdb.bucket are required when influxdb is enabled")

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

// GetPublicURL returns the base URL used in spreadsheet query files.
func (c *Config) GetPublicURL() string {
	if c.API.PublicURL != "" {
		return strings.TrimRight(c.API.PublicURL, "/")
	}
	return fmt.Sprintf("http://localhost:%d", c.API.Port)
}

// Seconds converts a whole-second setting to a Duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
