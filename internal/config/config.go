package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	ServiceName string           `yaml:"service_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Fleet       FleetConfig      `yaml:"fleet"`
	Synth       SynthConfig      `yaml:"synth"`
	Voice       VoiceConfig      `yaml:"voice"`
	Output      OutputConfig     `yaml:"output"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRuns       int    `yaml:"max_runs"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// FleetConfig describes the remote synthesis worker fleet: where the
// descriptor API lives and how worker base URLs are derived and probed.
type FleetConfig struct {
	APIURL         string `yaml:"api_url"`
	APIKey         string `yaml:"api_key"`
	ProxyPort      int    `yaml:"proxy_port"`
	ProxyDomain    string `yaml:"proxy_domain"`
	MaxRetries     int    `yaml:"max_retries"`
	RetryDelayMS   int    `yaml:"retry_delay_ms"`
	ProbeTimeoutMS int    `yaml:"probe_timeout_ms"`
}

type SynthConfig struct {
	Mode             string `yaml:"mode"` // remote, exec, mock
	Command          string `yaml:"command"`
	Language         string `yaml:"language"`
	Accent           string `yaml:"accent"`
	RequestTimeoutMS int    `yaml:"request_timeout_ms"`
	MaxParallel      int    `yaml:"max_parallel"`
}

type VoiceConfig struct {
	NarratorVoice string `yaml:"narrator_voice"`
	DefaultVoice  string `yaml:"default_voice"`
	SilenceGapMS  int    `yaml:"silence_gap_ms"`
}

type OutputConfig struct {
	Dir     string `yaml:"dir"`
	TempDir string `yaml:"temp_dir"`
}

func Default() Config {
	return Config{
		ServiceName: "fablevoice",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/fablevoice-runs.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxRuns:       10000,
		},
		Fleet: FleetConfig{
			ProxyPort:      8020,
			ProxyDomain:    "runpod.net",
			MaxRetries:     20,
			RetryDelayMS:   5000,
			ProbeTimeoutMS: 10000,
		},
		Synth: SynthConfig{
			Mode:             "mock",
			Language:         "en",
			Accent:           "en",
			RequestTimeoutMS: 60000,
			MaxParallel:      1,
		},
		Voice: VoiceConfig{
			NarratorVoice: "narrator.wav",
			DefaultVoice:  "companion.wav",
			SilenceGapMS:  1000,
		},
		Output: OutputConfig{
			Dir:     "./data/voicelines",
			TempDir: "./data/tmp",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "FABLEVOICE_SERVICE_NAME")
	overrideString(&cfg.Environment, "FABLEVOICE_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "FABLEVOICE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "FABLEVOICE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "FABLEVOICE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "FABLEVOICE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "FABLEVOICE_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "FABLEVOICE_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "FABLEVOICE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "FABLEVOICE_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "FABLEVOICE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "FABLEVOICE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "FABLEVOICE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "FABLEVOICE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "FABLEVOICE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "FABLEVOICE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "FABLEVOICE_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "FABLEVOICE_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "FABLEVOICE_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxRuns, "FABLEVOICE_EVENT_STORE_MAX_RUNS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "FABLEVOICE_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Fleet.APIURL, "FABLEVOICE_FLEET_API_URL")
	overrideString(&cfg.Fleet.APIKey, "FABLEVOICE_FLEET_API_KEY")
	overrideInt(&cfg.Fleet.ProxyPort, "FABLEVOICE_FLEET_PROXY_PORT")
	overrideString(&cfg.Fleet.ProxyDomain, "FABLEVOICE_FLEET_PROXY_DOMAIN")
	overrideInt(&cfg.Fleet.MaxRetries, "FABLEVOICE_FLEET_MAX_RETRIES")
	overrideInt(&cfg.Fleet.RetryDelayMS, "FABLEVOICE_FLEET_RETRY_DELAY_MS")
	overrideInt(&cfg.Fleet.ProbeTimeoutMS, "FABLEVOICE_FLEET_PROBE_TIMEOUT_MS")
	overrideString(&cfg.Synth.Mode, "FABLEVOICE_SYNTH_MODE")
	overrideString(&cfg.Synth.Command, "FABLEVOICE_SYNTH_COMMAND")
	overrideString(&cfg.Synth.Language, "FABLEVOICE_SYNTH_LANGUAGE")
	overrideString(&cfg.Synth.Accent, "FABLEVOICE_SYNTH_ACCENT")
	overrideInt(&cfg.Synth.RequestTimeoutMS, "FABLEVOICE_SYNTH_REQUEST_TIMEOUT_MS")
	overrideInt(&cfg.Synth.MaxParallel, "FABLEVOICE_SYNTH_MAX_PARALLEL")
	overrideString(&cfg.Voice.NarratorVoice, "FABLEVOICE_VOICE_NARRATOR")
	overrideString(&cfg.Voice.DefaultVoice, "FABLEVOICE_VOICE_DEFAULT")
	overrideInt(&cfg.Voice.SilenceGapMS, "FABLEVOICE_VOICE_SILENCE_GAP_MS")
	overrideString(&cfg.Output.Dir, "FABLEVOICE_OUTPUT_DIR")
	overrideString(&cfg.Output.TempDir, "FABLEVOICE_OUTPUT_TEMP_DIR")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	switch cfg.Synth.Mode {
	case "remote", "exec", "mock":
	default:
		return errors.New("synth.mode must be one of remote|exec|mock")
	}
	if cfg.Synth.Mode == "remote" {
		if cfg.Fleet.APIURL == "" {
			return errors.New("fleet.api_url must be set when synth.mode=remote")
		}
		if cfg.Fleet.ProxyPort <= 0 || cfg.Fleet.ProxyPort > 65535 {
			return errors.New("fleet.proxy_port must be between 1 and 65535")
		}
		if cfg.Fleet.ProxyDomain == "" {
			return errors.New("fleet.proxy_domain must not be empty")
		}
		if cfg.Fleet.MaxRetries <= 0 {
			return errors.New("fleet.max_retries must be >= 1")
		}
		if cfg.Fleet.RetryDelayMS < 0 {
			return errors.New("fleet.retry_delay_ms must be >= 0")
		}
	}
	if cfg.Synth.Mode == "exec" && cfg.Synth.Command == "" {
		return errors.New("synth.command must be set when synth.mode=exec")
	}
	if cfg.Synth.MaxParallel <= 0 {
		return errors.New("synth.max_parallel must be >= 1")
	}
	if cfg.Voice.NarratorVoice == "" {
		return errors.New("voice.narrator_voice must not be empty")
	}
	if cfg.Voice.SilenceGapMS < 0 {
		return errors.New("voice.silence_gap_ms must be >= 0")
	}
	if cfg.Output.Dir == "" {
		return errors.New("output.dir must not be empty")
	}
	if cfg.Output.TempDir == "" {
		return errors.New("output.temp_dir must not be empty")
	}
	return nil
}
