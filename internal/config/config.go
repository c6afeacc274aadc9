package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"netrunner/pkg/fileutil"
)

// Workflow names used as keys under workflows.
const (
	LaunchNetwork  = "launch-network"
	DestroyNetwork = "destroy-network"
	UpscaleNetwork = "upscale-network"
)

// FileName is the config file searched for in the default locations.
const FileName = "netrunner.yml"

const (
	DefaultOwner                = "maidsafe"
	DefaultRepo                 = "sn-testnet-workflows"
	DefaultRef                  = "main"
	DefaultBindAttempts         = 3
	DefaultRequestsPerSecond    = 1.0
	DefaultBurst                = 5
	DefaultCorrelationInterval  = 2 * time.Second
	DefaultCorrelationWindow    = 60 * time.Second
	DefaultCorrelationSkew      = 10 * time.Second
	DefaultPollInterval         = 15 * time.Second
	DefaultPollMaxDuration      = 60 * time.Minute
	DefaultMaxConsecutiveErrors = 5
	DefaultServerHost           = "127.0.0.1"
	DefaultServerPort           = 8089
	DefaultRefreshInterval      = 5 * time.Minute
	DefaultServerRateLimit      = 10.0
)

// DefaultWorkflows are the workflow ids of the testnet repository.
var DefaultWorkflows = map[string]Workflow{
	LaunchNetwork:  {ID: "144945387"},
	DestroyNetwork: {ID: "63357826"},
	UpscaleNetwork: {ID: "105092652"},

	"client-deploy":                  {ID: "155060032"},
	"deposit-funds":                  {ID: "125539747"},
	"drain-funds":                    {ID: "125539749"},
	"kill-droplets":                  {ID: "128878189"},
	"network-status":                 {ID: "109501466"},
	"reset-to-n-nodes":               {ID: "134957069"},
	"start-nodes":                    {ID: "109583089"},
	"stop-nodes":                     {ID: "126356854"},
	"start-telegraf":                 {ID: "154514010"},
	"stop-telegraf":                  {ID: "154514011"},
	"start-uploaders":                {ID: "116345515"},
	"stop-uploaders":                 {ID: "116345516"},
	"start-downloaders":              {ID: "155894274"},
	"stop-downloaders":               {ID: "155894275"},
	"telegraf-upgrade-client-config": {ID: "154514012"},
	"telegraf-upgrade-geoip-config":  {ID: "154514013"},
	"telegraf-upgrade-node-config":   {ID: "154514014"},
	"update-peer":                    {ID: "127823614"},
	"upgrade-antctl":                 {ID: "134531916"},
	"upgrade-clients":                {ID: "153422018"},
	"upgrade-network":                {ID: "109064529"},
}

// Config is the root of netrunner.yml.
type Config struct {
	Owner        string              `yaml:"owner"`
	Repo         string              `yaml:"repo"`
	Ref          string              `yaml:"ref"`
	Database     string              `yaml:"database"`
	Workflows    map[string]Workflow `yaml:"workflows"`
	Correlation  Correlation         `yaml:"correlation"`
	Polling      Polling             `yaml:"polling"`
	BindAttempts int                 `yaml:"bind_attempts"`
	API          API                 `yaml:"api"`
	Notify       Notify              `yaml:"notify"`
	Server       Server              `yaml:"server"`

	// Path is the file the config was read from, or "" for defaults.
	Path string `yaml:"-"`
}

// Workflow identifies a workflow by numeric id or file name. TokenInput,
// when set, names the workflow_dispatch input that carries the
// correlation token into the run name.
type Workflow struct {
	ID         string `yaml:"id"`
	TokenInput string `yaml:"token_input"`
}

// Correlation tunes the run search after a dispatch.
type Correlation struct {
	Interval time.Duration `yaml:"interval"`
	Window   time.Duration `yaml:"window"`
	Skew     time.Duration `yaml:"skew"`
}

// Polling tunes the wait for a run to complete.
type Polling struct {
	Interval             time.Duration `yaml:"interval"`
	MaxDuration          time.Duration `yaml:"max_duration"`
	MaxConsecutiveErrors int           `yaml:"max_consecutive_errors"`
}

// API configures the GitHub client.
type API struct {
	BaseURL           string  `yaml:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Notify configures the Slack webhook.
type Notify struct {
	SlackWebhookURL string `yaml:"slack_webhook_url"`
}

// Server configures the status API.
type Server struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	RateLimit       float64       `yaml:"rate_limit"`
}

// Resolve returns the config file to read: the explicit path, then
// $NETRUNNER_CONFIG, then the first default location that exists. It
// returns "" when there is no file, which means defaults only.
func Resolve(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv("NETRUNNER_CONFIG"); env != "" {
		return env
	}
	return fileutil.FindConfigOptional(FileName)
}

// Load reads, defaults and validates the config at path. An empty path
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
		cfg.Path = path
	}

	cfg.applyDefaults()

	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid configuration:\n%s", strings.Join(problems, "\n"))
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Owner == "" {
		c.Owner = DefaultOwner
	}
	if c.Repo == "" {
		c.Repo = DefaultRepo
	}
	if c.Ref == "" {
		c.Ref = DefaultRef
	}
	if c.Database == "" {
		c.Database = filepath.Join(fileutil.DataDir(), "netrunner.db")
	}

	if c.Workflows == nil {
		c.Workflows = make(map[string]Workflow)
	}
	for name, wf := range DefaultWorkflows {
		current, ok := c.Workflows[name]
		if !ok {
			c.Workflows[name] = wf
			continue
		}
		if current.ID == "" {
			current.ID = wf.ID
			c.Workflows[name] = current
		}
	}

	if c.Correlation.Interval == 0 {
		c.Correlation.Interval = DefaultCorrelationInterval
	}
	if c.Correlation.Window == 0 {
		c.Correlation.Window = DefaultCorrelationWindow
	}
	if c.Correlation.Skew == 0 {
		c.Correlation.Skew = DefaultCorrelationSkew
	}

	if c.Polling.Interval == 0 {
		c.Polling.Interval = DefaultPollInterval
	}
	if c.Polling.MaxDuration == 0 {
		c.Polling.MaxDuration = DefaultPollMaxDuration
	}
	if c.Polling.MaxConsecutiveErrors == 0 {
		c.Polling.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}

	if c.BindAttempts == 0 {
		c.BindAttempts = DefaultBindAttempts
	}

	if c.API.RequestsPerSecond == 0 {
		c.API.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if c.API.Burst == 0 {
		c.API.Burst = DefaultBurst
	}

	if c.Server.Host == "" {
		c.Server.Host = DefaultServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.RefreshInterval == 0 {
		c.Server.RefreshInterval = DefaultRefreshInterval
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = DefaultServerRateLimit
	}
}

// Validate returns the problems found in a defaulted config.
func (c *Config) Validate() []string {
	var errors []string

	if strings.Contains(c.Owner, "/") || strings.Contains(c.Repo, "/") {
		errors = append(errors, fmt.Sprintf("  - owner and repo must be single path segments, got '%s/%s'", c.Owner, c.Repo))
	}
	if strings.HasPrefix(c.Ref, "-") {
		errors = append(errors, fmt.Sprintf("  - ref cannot start with '-', got '%s'", c.Ref))
	}

	for name, wf := range c.Workflows {
		if strings.ContainsAny(wf.ID, " /") {
			errors = append(errors, fmt.Sprintf("  - workflow '%s': id must be a number or a workflow file name, got '%s'", name, wf.ID))
		}
	}

	if c.Correlation.Interval < 0 || c.Correlation.Window < 0 || c.Correlation.Skew < 0 {
		errors = append(errors, "  - correlation durations must be positive")
	}
	if c.Correlation.Window < c.Correlation.Interval {
		errors = append(errors, fmt.Sprintf("  - correlation window (%s) must not be shorter than its interval (%s)",
			c.Correlation.Window, c.Correlation.Interval))
	}

	if c.Polling.Interval < 0 || c.Polling.MaxDuration < 0 {
		errors = append(errors, "  - polling durations must be positive")
	}
	if c.Polling.MaxDuration < c.Polling.Interval {
		errors = append(errors, fmt.Sprintf("  - polling max_duration (%s) must not be shorter than its interval (%s)",
			c.Polling.MaxDuration, c.Polling.Interval))
	}
	if c.Polling.MaxConsecutiveErrors < 0 {
		errors = append(errors, fmt.Sprintf("  - polling max_consecutive_errors must be positive, got %d", c.Polling.MaxConsecutiveErrors))
	}

	if c.BindAttempts < 0 {
		errors = append(errors, fmt.Sprintf("  - bind_attempts must be positive, got %d", c.BindAttempts))
	}

	if c.API.RequestsPerSecond < 0 || c.API.Burst < 0 {
		errors = append(errors, "  - api requests_per_second and burst must be positive")
	}
	if c.API.BaseURL != "" && !strings.HasPrefix(c.API.BaseURL, "http") {
		errors = append(errors, fmt.Sprintf("  - api base_url must be an http(s) URL, got '%s'", c.API.BaseURL))
	}

	if c.Notify.SlackWebhookURL != "" && !strings.HasPrefix(c.Notify.SlackWebhookURL, "https://") {
		errors = append(errors, "  - notify slack_webhook_url must be an https URL")
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errors = append(errors, fmt.Sprintf("  - server port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.RefreshInterval < 0 || c.Server.RateLimit < 0 {
		errors = append(errors, "  - server refresh_interval and rate_limit must be positive")
	}

	return errors
}

// Workflow returns the configured workflow for name.
func (c *Config) Workflow(name string) (Workflow, error) {
	wf, ok := c.Workflows[name]
	if !ok || wf.ID == "" {
		return Workflow{}, fmt.Errorf("workflow '%s' is not configured", name)
	}
	return wf, nil
}

// WebhookURL returns the Slack webhook: config first, then the
// environment.
func (c *Config) WebhookURL() string {
	if c.Notify.SlackWebhookURL != "" {
		return c.Notify.SlackWebhookURL
	}
	if v := os.Getenv("NETRUNNER_SLACK_WEBHOOK_URL"); v != "" {
		return v
	}
	return os.Getenv("ANT_RUNNER_COMPARISON_WEBHOOK_URL")
}
