package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/okapi-harvester/internal/harvest"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "https://www.radiookapi.net/journal-journal-lingala/journal-lingala-matin-", cfg.Source.BaseURL)
	assert.Equal(t, []string{".mp3"}, cfg.Source.MediaExtensions)
	assert.Equal(t, 10*time.Second, cfg.HTTP.PageTimeout)
	assert.Equal(t, 15*time.Second, cfg.HTTP.MediaTimeout)
	assert.Equal(t, "data/raw/okapi", cfg.Harvest.Out)
	assert.Equal(t, 3, cfg.Harvest.Threads)
	assert.True(t, cfg.Harvest.Metadata)
	assert.True(t, cfg.Harvest.Manifest)
	assert.False(t, cfg.Harvest.ExplicitRange())
	assert.Equal(t, 500*time.Millisecond, cfg.Harvest.DispatchDelay)
	assert.Equal(t, 190, cfg.Discovery.Baseline)
	assert.Equal(t, 1000, cfg.Discovery.MaxProbes)
	assert.Equal(t, "skip", cfg.Discovery.OnError)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, "lingala-stt", cfg.Upload.Prefix)
	assert.Equal(t, 16<<20, cfg.Upload.ChunkSize)
	assert.Equal(t, 5*time.Minute, cfg.Schedule.Timeout)
	assert.Equal(t, []string{"--latest", "5", "--incremental"}, cfg.Schedule.Args)
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
source:
  series: Journal Lingala Soir
  media_extensions: [".mp3", ".m4a"]
harvest:
  out: /srv/okapi
  threads: 6
  start: 200
  end: 210
discovery:
  on_error: abort
logging:
  development: false
upload:
  bucket: okapi-mirror
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "Journal Lingala Soir", cfg.Source.Series)
	assert.Equal(t, []string{".mp3", ".m4a"}, cfg.Source.MediaExtensions)
	assert.Equal(t, "/srv/okapi", cfg.Harvest.Out)
	assert.Equal(t, 6, cfg.Harvest.Threads)
	assert.True(t, cfg.Harvest.ExplicitRange())
	assert.Equal(t, "abort", cfg.Discovery.OnError)
	assert.False(t, cfg.Logging.Development)
	assert.Equal(t, "okapi-mirror", cfg.Upload.Bucket)
}

func TestLoadEnvAndFlagPrecedence(t *testing.T) {
	t.Setenv("HARVEST_HARVEST_THREADS", "5")
	t.Setenv("HARVEST_HARVEST_OUT", "/from/env")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT", `{"type":"service_account"}`)

	flags := pflag.NewFlagSet("harvest", pflag.ContinueOnError)
	flags.Int("threads", 3, "")
	flags.Bool("incremental", false, "")
	flags.Int("latest", 0, "")
	flags.String("unrelated", "", "")
	require.NoError(t, flags.Parse([]string{"--threads", "8", "--incremental", "--latest", "4"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Harvest.Threads)
	assert.Equal(t, "/from/env", cfg.Harvest.Out)
	assert.True(t, cfg.Harvest.Incremental)
	assert.Equal(t, 4, cfg.Harvest.Latest)
	assert.Equal(t, `{"type":"service_account"}`, cfg.Upload.CredentialsJSON)
}

func TestLoadUnchangedFlagKeepsDefault(t *testing.T) {
	flags := pflag.NewFlagSet("harvest", pflag.ContinueOnError)
	flags.Int("threads", 1, "")
	require.NoError(t, flags.Parse(nil))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Harvest.Threads)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.ErrorIs(t, err, harvest.ErrConfig)
}

func validConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := Load("", nil)
	require.NoError(t, err)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"ZeroThreads", func(c *Config) { c.Harvest.Threads = 0 }},
		{"EmptyOut", func(c *Config) { c.Harvest.Out = " " }},
		{"StartWithoutEnd", func(c *Config) { c.Harvest.Start = 10 }},
		{"StartAfterEnd", func(c *Config) { c.Harvest.Start, c.Harvest.End = 20, 10 }},
		{"LatestWithRange", func(c *Config) { c.Harvest.Start, c.Harvest.End, c.Harvest.Latest = 1, 2, 3 }},
		{"NegativeLatest", func(c *Config) { c.Harvest.Latest = -1 }},
		{"RelativeBaseURL", func(c *Config) { c.Source.BaseURL = "journal-lingala-matin-" }},
		{"NoExtensions", func(c *Config) { c.Source.MediaExtensions = nil }},
		{"ZeroPageTimeout", func(c *Config) { c.HTTP.PageTimeout = 0 }},
		{"ZeroMediaTimeout", func(c *Config) { c.HTTP.MediaTimeout = 0 }},
		{"ZeroProbes", func(c *Config) { c.Discovery.MaxProbes = 0 }},
		{"ZeroBaseline", func(c *Config) { c.Discovery.Baseline = 0 }},
		{"UnknownPolicy", func(c *Config) { c.Discovery.OnError = "retry" }},
		{"ZeroScheduleTimeout", func(c *Config) { c.Schedule.Timeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), harvest.ErrConfig)
		})
	}
}

func TestValidateUpload(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT", "")
	t.Setenv("HARVEST_UPLOAD_CREDENTIALS_JSON", "")
	cfg := validConfig(t)
	require.ErrorIs(t, cfg.ValidateUpload(), harvest.ErrConfig)

	cfg.Upload.Bucket = "okapi"
	require.ErrorIs(t, cfg.ValidateUpload(), harvest.ErrConfig, "credentials are required")

	cfg.Upload.CredentialsFile = "/secrets/sa.json"
	require.NoError(t, cfg.ValidateUpload())

	cfg.Upload.PubSubTopic = "okapi-refresh"
	assert.ErrorIs(t, cfg.ValidateUpload(), harvest.ErrConfig)
	cfg.Upload.PubSubProject = "okapi-project"
	assert.NoError(t, cfg.ValidateUpload())
}
