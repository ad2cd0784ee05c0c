package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supervision backends.
const (
	BackendDaemontools = "daemontools"
	BackendExec        = "exec"
)

// Config is the root configuration structure for the platform daemon.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Platform   PlatformConfig   `yaml:"platform"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	CANBus     CANBusConfig     `yaml:"canbus"`
}

// SiteConfig identifies the appliance.
type SiteConfig struct {
	ID string `yaml:"id"`
	// Name is published as the platform ProductName.
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite settings for the command journal.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"` // seconds

	// Retention is the age after which journal rows are pruned. 0 keeps
	// everything.
	Retention     time.Duration `yaml:"retention"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	// TopicPrefix is the root of the remote-object namespace.
	TopicPrefix string `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig bounds the reconnect backoff, in seconds.
type MQTTReconnectConfig struct {
	MaxDelay int `yaml:"max_delay"`
}

// APIConfig contains HTTP status API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains event stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for transition metrics.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SupervisorConfig selects and configures the process-supervision backend.
type SupervisorConfig struct {
	// Backend is "daemontools" (control FIFOs below ServiceDir) or
	// "exec" (the daemon runs the processes listed in Services itself).
	Backend string `yaml:"backend"`

	// ServiceDir holds one directory per supervised service.
	// Default: /service
	ServiceDir string `yaml:"service_dir"`

	// TemplateDir holds <name>.conf service templates; optional services
	// are only bound when their template exists.
	TemplateDir string `yaml:"template_dir"`

	// GracefulTimeout bounds a stop of an exec-backed process before SIGKILL.
	GracefulTimeout time.Duration `yaml:"graceful_timeout"`

	// Services describes exec-backed processes by service name.
	Services map[string]ExecServiceConfig `yaml:"services"`
}

// ExecServiceConfig describes one process run by the exec backend.
type ExecServiceConfig struct {
	Binary  string   `yaml:"binary"`
	Args    []string `yaml:"args"`
	Env     []string `yaml:"env"`
	WorkDir string   `yaml:"work_dir"`
}

// PlatformConfig contains the platform wiring settings.
type PlatformConfig struct {
	// SettingsService is the remote object holding persisted settings.
	SettingsService string `yaml:"settings_service"`

	// SettingsTimeout is how long startup waits for SettingsService to be
	// synchronized before exiting with a failure.
	SettingsTimeout time.Duration `yaml:"settings_timeout"`

	// RebootDelay is the debounce delay of the reboot action.
	RebootDelay time.Duration `yaml:"reboot_delay"`

	// LockFile guards against a second daemon instance.
	LockFile string `yaml:"lock_file"`

	UniqueIDCommand    string `yaml:"unique_id_command"`
	DataPartitionState string `yaml:"data_partition_state"`
	InstallerVersion   string `yaml:"installer_version"`
	EvccServiceDir     string `yaml:"evcc_service_dir"`
	DemoDir            string `yaml:"demo_dir"`
	TailscaleBinary    string `yaml:"tailscale_binary"`
	ConsoleDevice      string `yaml:"console_device"`
}

// DiscoveryConfig contains the object classification tables.
type DiscoveryConfig struct {
	GeneratorPrefixes []string `yaml:"generator_prefixes"`
	BatteryPrefixes   []string `yaml:"battery_prefixes"`
	// BMSProductIDs are the battery product ids that need the parallel BMS service.
	BMSProductIDs []int64 `yaml:"bms_product_ids"`
}

// CANBusConfig contains CAN interface discovery settings.
type CANBusConfig struct {
	Enabled bool `yaml:"enabled"`
	// SysClassNet is the sysfs directory listing network interfaces.
	SysClassNet string `yaml:"sys_class_net"`
}

// Load layers the YAML file at path over Default, then applies the
// PLATFORMD_* environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with the appliance defaults.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "platform-001",
			Name: "Venus",
		},
		Database: DatabaseConfig{
			Path:          "/data/platformd/journal.db",
			WALMode:       true,
			BusyTimeout:   5,
			Retention:     30 * 24 * time.Hour,
			PruneInterval: 6 * time.Hour,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "platformd",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				MaxDelay: 60,
			},
			TopicPrefix: "venus",
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8088,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/api/v1/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Supervisor: SupervisorConfig{
			Backend:         BackendDaemontools,
			ServiceDir:      "/service",
			TemplateDir:     "/opt/victronenergy/service-templates/conf",
			GracefulTimeout: 10 * time.Second,
		},
		Platform: PlatformConfig{
			SettingsService:    "com.victronenergy.settings",
			SettingsTimeout:    120 * time.Second,
			RebootDelay:        2 * time.Second,
			LockFile:           "/run/platformd.lock",
			UniqueIDCommand:    "get-unique-id",
			DataPartitionState: "/run/data-partition-state",
			InstallerVersion:   "/data/venus/installer-version",
			EvccServiceDir:     "/data/evcc/service",
			DemoDir:            "/opt/victronenergy/dbus-recorder",
			TailscaleBinary:    "/usr/bin/tailscale",
			ConsoleDevice:      "/dev/ttyconsole",
		},
		Discovery: DiscoveryConfig{
			GeneratorPrefixes: []string{"com.victronenergy.genset", "com.victronenergy.dcgenset"},
			BatteryPrefixes:   []string{"com.victronenergy.battery"},
			BMSProductIDs:     []int64{0xA3E5, 0xA3E4, 0xA3E6, 0xA3E7},
		},
		CANBus: CANBusConfig{
			Enabled:     true,
			SysClassNet: "/sys/class/net",
		},
	}
}

// applyEnvOverrides covers the settings that differ per device and the
// secrets that should stay out of the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PLATFORMD_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("PLATFORMD_DATABASE_RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Database.Retention = d
		}
	}

	if v := os.Getenv("PLATFORMD_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("PLATFORMD_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("PLATFORMD_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("PLATFORMD_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("PLATFORMD_MQTT_TOPIC_PREFIX"); v != "" {
		cfg.MQTT.TopicPrefix = v
	}

	if v := os.Getenv("PLATFORMD_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("PLATFORMD_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("PLATFORMD_SUPERVISOR_BACKEND"); v != "" {
		cfg.Supervisor.Backend = v
	}
	if v := os.Getenv("PLATFORMD_SUPERVISOR_SERVICE_DIR"); v != "" {
		cfg.Supervisor.ServiceDir = v
	}

	if v := os.Getenv("PLATFORMD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.Retention < 0 {
		errs = append(errs, "database.retention must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if strings.ContainsAny(c.MQTT.TopicPrefix, "+#") {
		errs = append(errs, "mqtt.topic_prefix must not contain wildcards")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	switch c.Supervisor.Backend {
	case BackendDaemontools:
		if c.Supervisor.ServiceDir == "" {
			errs = append(errs, "supervisor.service_dir is required for the daemontools backend")
		}
	case BackendExec:
		for name, svc := range c.Supervisor.Services {
			if svc.Binary == "" {
				errs = append(errs, fmt.Sprintf("supervisor.services.%s.binary is required", name))
			}
		}
	default:
		errs = append(errs, fmt.Sprintf("supervisor.backend %q must be %q or %q", c.Supervisor.Backend, BackendDaemontools, BackendExec))
	}

	if c.Platform.SettingsService == "" {
		errs = append(errs, "platform.settings_service is required")
	}
	if c.Platform.SettingsTimeout <= 0 {
		errs = append(errs, "platform.settings_timeout must be positive")
	}
	if c.Platform.RebootDelay < 0 {
		errs = append(errs, "platform.reboot_delay must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
