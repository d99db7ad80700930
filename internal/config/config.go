// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/okapi-harvester/internal/harvest"
	"github.com/JakeFAU/okapi-harvester/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. HARVEST_HARVEST_THREADS.
const EnvPrefix = "HARVEST"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Source    SourceConfig    `mapstructure:"source"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Harvest   HarvestConfig   `mapstructure:"harvest"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   logging.Config  `mapstructure:"logging"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
}

// SourceConfig describes the remote series being harvested.
type SourceConfig struct {
	BaseURL         string   `mapstructure:"base_url"`
	Origin          string   `mapstructure:"origin"`
	Series          string   `mapstructure:"series"`
	Name            string   `mapstructure:"name"`
	Language        string   `mapstructure:"language"`
	UserAgent       string   `mapstructure:"user_agent"`
	MediaExtensions []string `mapstructure:"media_extensions"`
	// Patterns overrides the built-in media extraction patterns, in priority order.
	Patterns []string `mapstructure:"patterns"`
}

// HTTPConfig bounds remote calls.
type HTTPConfig struct {
	PageTimeout  time.Duration `mapstructure:"page_timeout"`
	MediaTimeout time.Duration `mapstructure:"media_timeout"`
}

// HarvestConfig drives the orchestrator.
type HarvestConfig struct {
	Out           string        `mapstructure:"out"`
	Threads       int           `mapstructure:"threads"`
	Start         int           `mapstructure:"start"`
	End           int           `mapstructure:"end"`
	Latest        int           `mapstructure:"latest"`
	Incremental   bool          `mapstructure:"incremental"`
	Metadata      bool          `mapstructure:"metadata"`
	Manifest      bool          `mapstructure:"manifest"`
	DryRun        bool          `mapstructure:"dry_run"`
	DispatchDelay time.Duration `mapstructure:"dispatch_delay"`
}

// ExplicitRange reports whether start and end were supplied.
func (h HarvestConfig) ExplicitRange() bool {
	return h.Start != 0 || h.End != 0
}

// DiscoveryConfig controls range probing.
type DiscoveryConfig struct {
	Baseline   int           `mapstructure:"baseline"`
	MaxProbes  int           `mapstructure:"max_probes"`
	ProbeDelay time.Duration `mapstructure:"probe_delay"`
	OnError    string        `mapstructure:"on_error"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// UploadConfig configures the Cloud Storage mirror.
type UploadConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	CredentialsFile string `mapstructure:"credentials_file"`
	CredentialsJSON string `mapstructure:"credentials_json"`
	// Endpoint points at an emulator; it disables authentication.
	Endpoint      string `mapstructure:"endpoint"`
	Concurrency   int    `mapstructure:"concurrency"`
	PubSubProject string `mapstructure:"pubsub_project"`
	PubSubTopic   string `mapstructure:"pubsub_topic"`
	// ChunkSize is the resumable upload buffer in bytes; 0 uploads in one request.
	ChunkSize int `mapstructure:"chunk_size"`
}

// ScheduleConfig controls periodic re-invocation.
type ScheduleConfig struct {
	Interval string        `mapstructure:"interval"`
	Cron     string        `mapstructure:"cron"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Args     []string      `mapstructure:"args"`
}

// FlagKeys maps command-line flag names to configuration keys. Only flags
// present on the FlagSet passed to Load are bound.
var FlagKeys = map[string]string{
	"out":              "harvest.out",
	"threads":          "harvest.threads",
	"start":            "harvest.start",
	"end":              "harvest.end",
	"latest":           "harvest.latest",
	"incremental":      "harvest.incremental",
	"metadata":         "harvest.metadata",
	"manifest":         "harvest.manifest",
	"dry-run":          "harvest.dry_run",
	"dispatch-delay":   "harvest.dispatch_delay",
	"baseline":         "discovery.baseline",
	"max-probes":       "discovery.max_probes",
	"probe-delay":      "discovery.probe_delay",
	"on-probe-error":   "discovery.on_error",
	"metrics-textfile": "metrics.textfile",
	"log-level":        "logging.level",
	"dev":              "logging.development",
	"bucket":           "upload.bucket",
	"prefix":           "upload.prefix",
	"credentials":      "upload.credentials_file",
	"endpoint":         "upload.endpoint",
	"concurrency":      "upload.concurrency",
	"interval":         "schedule.interval",
	"cron":             "schedule.cron",
	"timeout":          "schedule.timeout",
}

// Load builds a Config from defaults, an optional file, the environment and
// flags, in increasing precedence. Validation failures wrap harvest.ErrConfig.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	if err := v.BindEnv("upload.credentials_json", EnvPrefix+"_UPLOAD_CREDENTIALS_JSON", "GOOGLE_SERVICE_ACCOUNT"); err != nil {
		return Config{}, fmt.Errorf("%w: bind env: %w", harvest.ErrConfig, err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: read config: %w", harvest.ErrConfig, err)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("%w: bind flag %s: %w", harvest.ErrConfig, name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: unmarshal config: %w", harvest.ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.base_url", "https://www.radiookapi.net/journal-journal-lingala/journal-lingala-matin-")
	v.SetDefault("source.origin", "https://www.radiookapi.net")
	v.SetDefault("source.series", "Journal Lingala Matin")
	v.SetDefault("source.name", "radio_okapi")
	v.SetDefault("source.language", "ln")
	v.SetDefault("source.user_agent", "okapi-harvester/1.0")
	v.SetDefault("source.media_extensions", []string{".mp3"})
	v.SetDefault("source.patterns", []string{})

	v.SetDefault("http.page_timeout", "10s")
	v.SetDefault("http.media_timeout", "15s")

	v.SetDefault("harvest.out", "data/raw/okapi")
	v.SetDefault("harvest.threads", 3)
	v.SetDefault("harvest.start", 0)
	v.SetDefault("harvest.end", 0)
	v.SetDefault("harvest.latest", 0)
	v.SetDefault("harvest.incremental", false)
	v.SetDefault("harvest.metadata", true)
	v.SetDefault("harvest.manifest", true)
	v.SetDefault("harvest.dry_run", false)
	v.SetDefault("harvest.dispatch_delay", "500ms")

	v.SetDefault("discovery.baseline", 190)
	v.SetDefault("discovery.max_probes", 1000)
	v.SetDefault("discovery.probe_delay", "1s")
	v.SetDefault("discovery.on_error", "skip")

	v.SetDefault("metrics.textfile", "")

	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")

	v.SetDefault("upload.bucket", "")
	v.SetDefault("upload.prefix", "lingala-stt")
	v.SetDefault("upload.credentials_file", "")
	v.SetDefault("upload.endpoint", "")
	v.SetDefault("upload.concurrency", 4)
	v.SetDefault("upload.pubsub_project", "")
	v.SetDefault("upload.pubsub_topic", "")
	v.SetDefault("upload.chunk_size", 16<<20)

	v.SetDefault("schedule.interval", "daily")
	v.SetDefault("schedule.cron", "")
	v.SetDefault("schedule.timeout", "5m")
	v.SetDefault("schedule.args", []string{"--latest", "5", "--incremental"})
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", harvest.ErrConfig, fmt.Sprintf(format, args...))
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := validateURL("source.base_url", c.Source.BaseURL); err != nil {
		return err
	}
	if err := validateURL("source.origin", c.Source.Origin); err != nil {
		return err
	}
	if len(c.Source.MediaExtensions) == 0 {
		return invalid("source.media_extensions must not be empty")
	}
	if c.HTTP.PageTimeout <= 0 {
		return invalid("http.page_timeout must be > 0")
	}
	if c.HTTP.MediaTimeout <= 0 {
		return invalid("http.media_timeout must be > 0")
	}

	h := c.Harvest
	if strings.TrimSpace(h.Out) == "" {
		return invalid("harvest.out must be set")
	}
	if h.Threads <= 0 {
		return invalid("harvest.threads must be > 0")
	}
	if h.DispatchDelay < 0 {
		return invalid("harvest.dispatch_delay must be >= 0")
	}
	if h.ExplicitRange() {
		if h.Start <= 0 || h.End <= 0 {
			return invalid("harvest.start and harvest.end must both be set and positive")
		}
		if h.Start > h.End {
			return invalid("harvest.start (%d) must be <= harvest.end (%d)", h.Start, h.End)
		}
		if h.Latest > 0 {
			return invalid("harvest.latest cannot be combined with an explicit range")
		}
	}
	if h.Latest < 0 {
		return invalid("harvest.latest must be >= 0")
	}

	d := c.Discovery
	if d.Baseline <= 0 {
		return invalid("discovery.baseline must be > 0")
	}
	if d.MaxProbes <= 0 {
		return invalid("discovery.max_probes must be > 0")
	}
	if d.ProbeDelay < 0 {
		return invalid("discovery.probe_delay must be >= 0")
	}
	switch d.OnError {
	case "skip", "abort":
	default:
		return invalid("discovery.on_error must be skip or abort, got %q", d.OnError)
	}

	if c.Schedule.Timeout <= 0 {
		return invalid("schedule.timeout must be > 0")
	}
	return nil
}

// ValidateUpload checks the settings the mirror needs. It is separate from
// Validate so harvesting never requires cloud credentials.
func (c Config) ValidateUpload() error {
	u := c.Upload
	if strings.TrimSpace(u.Bucket) == "" {
		return invalid("upload.bucket must be set")
	}
	if u.CredentialsFile == "" && u.CredentialsJSON == "" && u.Endpoint == "" {
		return invalid("upload requires upload.credentials_file, upload.credentials_json (or GOOGLE_SERVICE_ACCOUNT) or upload.endpoint")
	}
	if u.Concurrency <= 0 {
		return invalid("upload.concurrency must be > 0")
	}
	if u.ChunkSize < 0 {
		return invalid("upload.chunk_size must be >= 0")
	}
	if (u.PubSubProject == "") != (u.PubSubTopic == "") {
		return invalid("upload.pubsub_project and upload.pubsub_topic must be set together")
	}
	return nil
}

func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return invalid("%s must be an absolute URL, got %q", key, raw)
	}
	return nil
}
