package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Adapter types accepted in adapters[].type.
const (
	AdapterTypeFake        = "fake"
	AdapterTypeMQTT        = "mqtt"
	AdapterTypeZigbee2MQTT = "zigbee2mqtt"
	AdapterTypeHub         = "hub"
)

// Config is the root configuration structure for the adapter service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Manager   ManagerConfig   `yaml:"manager"`
	Policy    PolicyConfig    `yaml:"policy"`
	Adapters  []AdapterConfig `yaml:"adapters"`
}

// SiteConfig contains site-specific information.
// Timezone is used to evaluate policy quiet hours.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings for the audit trail.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains event stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for state telemetry.
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

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT settings for the HTTP API.
// An empty secret leaves the API unauthenticated; only do that on loopback.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// ManagerConfig contains command queue settings.
type ManagerConfig struct {
	MaxQueueSize      int `yaml:"max_queue_size"`
	CommandThrottleMs int `yaml:"command_throttle_ms"`
	CommandTimeoutMs  int `yaml:"command_timeout_ms"`
}

// PolicyConfig mirrors the policy engine configuration.
type PolicyConfig struct {
	DefaultRiskLevel string             `yaml:"default_risk_level"`
	DevicePolicies   []DevicePolicyRule `yaml:"device_policies"`
	ScenePolicies    []ScenePolicyRule  `yaml:"scene_policies"`
	GlobalSettings   GlobalSettings     `yaml:"global_settings"`
}

// DevicePolicyRule selects device commands and states a decision.
type DevicePolicyRule struct {
	DeviceID             string        `yaml:"device_id"`
	DeviceType           string        `yaml:"device_type"`
	Capability           string        `yaml:"capability"`
	Action               string        `yaml:"action"`
	Decision             string        `yaml:"decision"`
	RiskLevel            string        `yaml:"risk_level"`
	RequiresConfirmation bool          `yaml:"requires_confirmation"`
	AllowedRange         *AllowedRange `yaml:"allowed_range"`
	Reason               string        `yaml:"reason"`
}

// AllowedRange bounds a numeric command parameter.
type AllowedRange struct {
	Parameter string   `yaml:"parameter"`
	Min       *float64 `yaml:"min"`
	Max       *float64 `yaml:"max"`
}

// ScenePolicyRule selects scene commands and states a decision.
type ScenePolicyRule struct {
	SceneID              string `yaml:"scene_id"`
	SceneName            string `yaml:"scene_name"`
	Decision             string `yaml:"decision"`
	RequiresConfirmation bool   `yaml:"requires_confirmation"`
	Reason               string `yaml:"reason"`
}

// GlobalSettings are the fallbacks used when no rule matches.
type GlobalSettings struct {
	AllowHighRiskActions           bool             `yaml:"allow_high_risk_actions"`
	RequireConfirmationForHighRisk bool             `yaml:"require_confirmation_for_high_risk"`
	EnableQuietHours               bool             `yaml:"enable_quiet_hours"`
	QuietHours                     QuietHoursConfig `yaml:"quiet_hours"`
}

// QuietHoursConfig is a local-time window in HH:MM. End may be before Start
// for windows that cross midnight.
type QuietHoursConfig struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// AdapterConfig configures one protocol adapter. Exactly one protocol block
// matching Type must be present (none for fake).
type AdapterConfig struct {
	ID                    string `yaml:"id"`
	Type                  string `yaml:"type"`
	Disabled              bool   `yaml:"disabled"`
	Priority              int    `yaml:"priority"`
	MaxReconnectAttempts  int    `yaml:"max_reconnect_attempts"`
	ReconnectDelayMs      int    `yaml:"reconnect_delay_ms"`
	HealthCheckIntervalMs int    `yaml:"health_check_interval_ms"`

	MQTT        *MQTTAdapterConfig `yaml:"mqtt,omitempty"`
	Zigbee2MQTT *Zigbee2MQTTConfig `yaml:"zigbee2mqtt,omitempty"`
	Hub         *HubConfig         `yaml:"hub,omitempty"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker MQTTBrokerConfig `yaml:"broker"`
	Auth   MQTTAuthConfig   `yaml:"auth"`
	QoS    int              `yaml:"qos"`
	// ConnectTimeoutMs bounds the initial broker handshake.
	ConnectTimeoutMs int `yaml:"connect_timeout_ms"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	TLS                bool   `yaml:"tls"`
	CAFile             string `yaml:"ca_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	ClientID           string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTAdapterConfig is the generic topic-mapped MQTT adapter block.
type MQTTAdapterConfig struct {
	MQTTConfig `yaml:",inline"`
	Devices    []MQTTDeviceConfig `yaml:"devices"`
}

// MQTTDeviceConfig declares one device and its per-capability topics.
type MQTTDeviceConfig struct {
	ID           string                 `yaml:"id"`
	Name         string                 `yaml:"name"`
	Type         string                 `yaml:"type"`
	AreaID       string                 `yaml:"area_id"`
	Manufacturer string                 `yaml:"manufacturer"`
	Model        string                 `yaml:"model"`
	Tags         []string               `yaml:"tags"`
	Capabilities []MQTTCapabilityConfig `yaml:"capabilities"`
}

// MQTTCapabilityConfig maps one capability to its broker topics.
type MQTTCapabilityConfig struct {
	Type         string `yaml:"type"`
	StateTopic   string `yaml:"state_topic"`
	CommandTopic string `yaml:"command_topic"`
	// Format is "json" or "raw".
	Format string `yaml:"format"`
	// Property is a dotted path into a JSON payload.
	Property   string `yaml:"property"`
	PayloadOn  string `yaml:"payload_on"`
	PayloadOff string `yaml:"payload_off"`
}

// Zigbee2MQTTConfig configures the Zigbee2MQTT adapter.
type Zigbee2MQTTConfig struct {
	MQTTConfig         `yaml:",inline"`
	BaseTopic          string   `yaml:"base_topic"`
	DiscoveryTimeoutMs int      `yaml:"discovery_timeout_ms"`
	Include            []string `yaml:"include"`
	Exclude            []string `yaml:"exclude"`
}

// HubConfig configures the cloud-hub adapter.
type HubConfig struct {
	BaseURL                string   `yaml:"base_url"`
	AccessToken            string   `yaml:"access_token"`
	IncludeDomains         []string `yaml:"include_domains"`
	ExcludeDomains         []string `yaml:"exclude_domains"`
	RequestTimeoutMs       int      `yaml:"request_timeout_ms"`
	WSReconnectDelayMs     int      `yaml:"ws_reconnect_delay_ms"`
	WSMaxReconnectAttempts int      `yaml:"ws_max_reconnect_attempts"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Per-adapter defaults for list entries
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern GRAYLOGIC_SECTION_KEY, and
// GRAYLOGIC_ADAPTER_<ID>_<KEY> for adapter secrets.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyAdapterDefaults()
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Gray Logic",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/adapters.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/api/ws",
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
		Manager: ManagerConfig{
			MaxQueueSize:      1000,
			CommandThrottleMs: 100,
			CommandTimeoutMs:  30000,
		},
		Policy: PolicyConfig{
			DefaultRiskLevel: "SAFE",
			GlobalSettings: GlobalSettings{
				AllowHighRiskActions:           true,
				RequireConfirmationForHighRisk: true,
			},
		},
	}
}

// Adapter defaults, in milliseconds where applicable.
const (
	defaultMaxReconnectAttempts  = 5
	defaultReconnectDelayMs      = 5000
	defaultHealthCheckIntervalMs = 60000
	defaultDiscoveryTimeoutMs    = 10000
	defaultHubRequestTimeoutMs   = 30000
	defaultBaseTopic             = "zigbee2mqtt"
)

// applyAdapterDefaults fills zero-valued adapter list fields, which YAML
// leaves untouched because list entries have no prior value.
func (c *Config) applyAdapterDefaults() {
	for i := range c.Adapters {
		a := &c.Adapters[i]
		if a.MaxReconnectAttempts == 0 {
			a.MaxReconnectAttempts = defaultMaxReconnectAttempts
		}
		if a.ReconnectDelayMs == 0 {
			a.ReconnectDelayMs = defaultReconnectDelayMs
		}
		if a.HealthCheckIntervalMs == 0 {
			a.HealthCheckIntervalMs = defaultHealthCheckIntervalMs
		}
		if a.MQTT != nil {
			applyMQTTDefaults(&a.MQTT.MQTTConfig, a.ID)
		}
		if z := a.Zigbee2MQTT; z != nil {
			applyMQTTDefaults(&z.MQTTConfig, a.ID)
			if z.BaseTopic == "" {
				z.BaseTopic = defaultBaseTopic
			}
			if z.DiscoveryTimeoutMs == 0 {
				z.DiscoveryTimeoutMs = defaultDiscoveryTimeoutMs
			}
		}
		if h := a.Hub; h != nil {
			if h.RequestTimeoutMs == 0 {
				h.RequestTimeoutMs = defaultHubRequestTimeoutMs
			}
			if h.WSReconnectDelayMs == 0 {
				h.WSReconnectDelayMs = defaultReconnectDelayMs
			}
			if h.WSMaxReconnectAttempts == 0 {
				h.WSMaxReconnectAttempts = defaultMaxReconnectAttempts
			}
		}
	}
}

func applyMQTTDefaults(m *MQTTConfig, adapterID string) {
	if m.Broker.Port == 0 {
		m.Broker.Port = 1883
		if m.Broker.TLS {
			m.Broker.Port = 8883
		}
	}
	if m.Broker.ClientID == "" {
		m.Broker.ClientID = "graylogic-adapters-" + adapterID
	}
	if m.QoS == 0 {
		m.QoS = 1
	}
	if m.ConnectTimeoutMs == 0 {
		m.ConnectTimeoutMs = 10000
	}
}

var envKeyReplacer = regexp.MustCompile(`[^A-Z0-9]+`)

// AdapterEnvPrefix returns the environment prefix for adapter-scoped
// overrides, e.g. "GRAYLOGIC_ADAPTER_HOME_HUB_" for id "home-hub".
func AdapterEnvPrefix(id string) string {
	return "GRAYLOGIC_ADAPTER_" + envKeyReplacer.ReplaceAllString(strings.ToUpper(id), "_") + "_"
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("GRAYLOGIC_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	if v := os.Getenv("GRAYLOGIC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Adapter secrets never need to live in the file.
	for i := range cfg.Adapters {
		a := &cfg.Adapters[i]
		prefix := AdapterEnvPrefix(a.ID)
		user := os.Getenv(prefix + "USERNAME")
		pass := os.Getenv(prefix + "PASSWORD")
		for _, m := range a.mqttBlocks() {
			if user != "" {
				m.Auth.Username = user
			}
			if pass != "" {
				m.Auth.Password = pass
			}
		}
		if v := os.Getenv(prefix + "TOKEN"); v != "" && a.Hub != nil {
			a.Hub.AccessToken = v
		}
	}
}

func (a *AdapterConfig) mqttBlocks() []*MQTTConfig {
	var out []*MQTTConfig
	if a.MQTT != nil {
		out = append(out, &a.MQTT.MQTTConfig)
	}
	if a.Zigbee2MQTT != nil {
		out = append(out, &a.Zigbee2MQTT.MQTTConfig)
	}
	return out
}

var (
	adapterIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)
	clockPattern     = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if c.Site.Timezone != "" {
		if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("site.timezone %q is not a known zone", c.Site.Timezone))
		}
	}
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	const minJWTSecretLength = 32
	if s := c.Security.JWT.Secret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if c.Manager.MaxQueueSize < 1 {
		errs = append(errs, "manager.max_queue_size must be positive")
	}
	if c.Manager.CommandThrottleMs < 0 {
		errs = append(errs, "manager.command_throttle_ms cannot be negative")
	}

	errs = append(errs, c.Policy.validate()...)

	seen := make(map[string]struct{}, len(c.Adapters))
	for i, a := range c.Adapters {
		field := fmt.Sprintf("adapters[%d]", i)
		if !adapterIDPattern.MatchString(a.ID) {
			errs = append(errs, field+".id must be non-empty and contain only letters, digits, '.', '_' or '-'")
		} else if _, dup := seen[a.ID]; dup {
			errs = append(errs, fmt.Sprintf("%s.id %q is duplicated", field, a.ID))
		}
		seen[a.ID] = struct{}{}
		errs = append(errs, a.validate(field)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (a AdapterConfig) validate(field string) []string {
	var errs []string
	blocks := 0
	for _, present := range []bool{a.MQTT != nil, a.Zigbee2MQTT != nil, a.Hub != nil} {
		if present {
			blocks++
		}
	}

	switch a.Type {
	case AdapterTypeFake:
		if blocks != 0 {
			errs = append(errs, field+": fake adapter takes no protocol block")
		}
	case AdapterTypeMQTT:
		if a.MQTT == nil || blocks != 1 {
			errs = append(errs, field+": mqtt adapter requires exactly the mqtt block")
			break
		}
		errs = append(errs, validateMQTT(field+".mqtt", a.MQTT.MQTTConfig)...)
		for j, d := range a.MQTT.Devices {
			df := fmt.Sprintf("%s.mqtt.devices[%d]", field, j)
			if d.ID == "" {
				errs = append(errs, df+".id is required")
			}
			if len(d.Capabilities) == 0 {
				errs = append(errs, df+" needs at least one capability")
			}
			for k, capCfg := range d.Capabilities {
				cf := fmt.Sprintf("%s.capabilities[%d]", df, k)
				if capCfg.StateTopic == "" && capCfg.CommandTopic == "" {
					errs = append(errs, cf+" needs a state_topic or command_topic")
				}
				if capCfg.Format != "" && capCfg.Format != "json" && capCfg.Format != "raw" {
					errs = append(errs, cf+".format must be json or raw")
				}
			}
		}
	case AdapterTypeZigbee2MQTT:
		if a.Zigbee2MQTT == nil || blocks != 1 {
			errs = append(errs, field+": zigbee2mqtt adapter requires exactly the zigbee2mqtt block")
			break
		}
		errs = append(errs, validateMQTT(field+".zigbee2mqtt", a.Zigbee2MQTT.MQTTConfig)...)
		if strings.ContainsAny(a.Zigbee2MQTT.BaseTopic, "+#") {
			errs = append(errs, field+".zigbee2mqtt.base_topic cannot contain wildcards")
		}
	case AdapterTypeHub:
		if a.Hub == nil || blocks != 1 {
			errs = append(errs, field+": hub adapter requires exactly the hub block")
			break
		}
		if !strings.HasPrefix(a.Hub.BaseURL, "http://") && !strings.HasPrefix(a.Hub.BaseURL, "https://") {
			errs = append(errs, field+".hub.base_url must be an http(s) URL")
		}
		if a.Hub.AccessToken == "" && !a.Disabled {
			errs = append(errs, field+".hub.access_token is required (set "+AdapterEnvPrefix(a.ID)+"TOKEN)")
		}
	default:
		errs = append(errs, fmt.Sprintf("%s.type %q must be one of fake, mqtt, zigbee2mqtt, hub", field, a.Type))
	}

	if a.MaxReconnectAttempts < 0 || a.ReconnectDelayMs < 0 {
		errs = append(errs, field+": reconnect settings cannot be negative")
	}
	return errs
}

func validateMQTT(field string, m MQTTConfig) []string {
	var errs []string
	if m.Broker.Host == "" {
		errs = append(errs, field+".broker.host is required")
	}
	if m.QoS < 0 || m.QoS > 2 {
		errs = append(errs, field+".qos must be 0, 1, or 2")
	}
	return errs
}

func (p PolicyConfig) validate() []string {
	var errs []string
	validRisk := map[string]bool{"": true, "SAFE": true, "MEDIUM": true, "HIGH": true}
	validDecision := map[string]bool{"": true, "ALLOW": true, "DENY": true, "REQUIRE_CONFIRMATION": true}

	if !validRisk[p.DefaultRiskLevel] {
		errs = append(errs, "policy.default_risk_level must be SAFE, MEDIUM or HIGH")
	}
	for i, r := range p.DevicePolicies {
		field := fmt.Sprintf("policy.device_policies[%d]", i)
		if r.DeviceID == "" && r.DeviceType == "" && r.Capability == "" && r.Action == "" {
			errs = append(errs, field+" must select on device_id, device_type, capability or action")
		}
		if !validDecision[r.Decision] {
			errs = append(errs, field+".decision must be ALLOW, DENY or REQUIRE_CONFIRMATION")
		}
		if !validRisk[r.RiskLevel] {
			errs = append(errs, field+".risk_level must be SAFE, MEDIUM or HIGH")
		}
		if ar := r.AllowedRange; ar != nil {
			if ar.Min != nil && ar.Max != nil && *ar.Min > *ar.Max {
				errs = append(errs, field+".allowed_range min exceeds max")
			}
		}
	}
	for i, r := range p.ScenePolicies {
		field := fmt.Sprintf("policy.scene_policies[%d]", i)
		if r.SceneID == "" && r.SceneName == "" {
			errs = append(errs, field+" must select on scene_id or scene_name")
		}
		if !validDecision[r.Decision] {
			errs = append(errs, field+".decision must be ALLOW, DENY or REQUIRE_CONFIRMATION")
		}
	}
	if p.GlobalSettings.EnableQuietHours {
		qh := p.GlobalSettings.QuietHours
		if !clockPattern.MatchString(qh.Start) || !clockPattern.MatchString(qh.End) {
			errs = append(errs, "policy.global_settings.quiet_hours start and end must be HH:MM")
		}
	}
	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetCommandThrottle returns the minimum gap between dispatched commands.
func (c *Config) GetCommandThrottle() time.Duration {
	return time.Duration(c.Manager.CommandThrottleMs) * time.Millisecond
}

// GetCommandTimeout returns the per-command execution timeout.
func (c *Config) GetCommandTimeout() time.Duration {
	return time.Duration(c.Manager.CommandTimeoutMs) * time.Millisecond
}

// Location returns the site time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Site.Timezone); err == nil && c.Site.Timezone != "" {
		return loc
	}
	return time.UTC
}

// GetReconnectDelay returns the base reconnect delay.
func (a AdapterConfig) GetReconnectDelay() time.Duration {
	return time.Duration(a.ReconnectDelayMs) * time.Millisecond
}

// GetHealthCheckInterval returns the health check period.
func (a AdapterConfig) GetHealthCheckInterval() time.Duration {
	return time.Duration(a.HealthCheckIntervalMs) * time.Millisecond
}

// GetDiscoveryTimeout returns the bridge device-list wait.
func (z Zigbee2MQTTConfig) GetDiscoveryTimeout() time.Duration {
	return time.Duration(z.DiscoveryTimeoutMs) * time.Millisecond
}

// GetConnectTimeout returns the broker handshake timeout.
func (m MQTTConfig) GetConnectTimeout() time.Duration {
	return time.Duration(m.ConnectTimeoutMs) * time.Millisecond
}

// GetRequestTimeout returns the per-request hub timeout.
func (h HubConfig) GetRequestTimeout() time.Duration {
	return time.Duration(h.RequestTimeoutMs) * time.Millisecond
}

// GetWSReconnectDelay returns the fixed WebSocket reconnect delay.
func (h HubConfig) GetWSReconnectDelay() time.Duration {
	return time.Duration(h.WSReconnectDelayMs) * time.Millisecond
}
