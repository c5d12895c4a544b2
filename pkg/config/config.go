// Package config loads the shared configuration for the propwatch
// binaries: a YAML file for structure, .env/environment for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/propwatch/propwatch/engine/geo"
)

// Config is the full configuration tree.
type Config struct {
	// Target is the account handle a report must mention.
	Target string `yaml:"target"`
	// TrustedAuthors may confirm removals directly.
	TrustedAuthors []string `yaml:"trusted_authors"`

	Bounds       geo.Bounds `yaml:"bounds"`
	MatchRadiusM float64    `yaml:"match_radius_m"`
	StaleDays    int        `yaml:"stale_days"`

	Paths struct {
		Dataset      string `yaml:"dataset"`
		State        string `yaml:"state"`
		GeocodeCache string `yaml:"geocode_cache"`
		EntityTable  string `yaml:"entity_table"`
	} `yaml:"paths"`

	NATS struct {
		URL           string `yaml:"url"`
		BatchSubject  string `yaml:"batch_subject"`
		ResultSubject string `yaml:"result_subject"`
	} `yaml:"nats"`

	Admin struct {
		Addr string `yaml:"addr"`
	} `yaml:"admin"`

	Neo4j struct {
		URI      string `yaml:"uri"`
		User     string `yaml:"user"`
		Password string `yaml:"-"`
	} `yaml:"neo4j"`

	Geocode struct {
		NominatimURL string   `yaml:"nominatim_url"`
		OverpassURLs []string `yaml:"overpass_urls"`
		UserAgent    string   `yaml:"user_agent"`
	} `yaml:"geocode"`

	Social struct {
		BaseURL string `yaml:"base_url"`
		Token   string `yaml:"-"`
	} `yaml:"social"`

	Runner struct {
		AuditDir    string        `yaml:"audit_dir"`
		StatePath   string        `yaml:"state_path"`
		KillSwitch  string        `yaml:"kill_switch"`
		ActionLog   string        `yaml:"action_log"`
		ActionDelay time.Duration `yaml:"action_delay"`
		RetryMargin time.Duration `yaml:"retry_margin"`
	} `yaml:"runner"`
}

// Load reads the YAML file at path and applies environment overrides.
// A .env file next to the process is honored if present; secrets only
// ever come from the environment, never from YAML.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.applyEnv()
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv("NEO4J_URI"); v != "" {
		c.Neo4j.URI = v
	}
	if v := os.Getenv("NEO4J_USER"); v != "" {
		c.Neo4j.User = v
	}
	c.Neo4j.Password = os.Getenv("NEO4J_PASSWORD")
	c.Social.Token = os.Getenv("SOCIAL_TOKEN")
	if v := os.Getenv("SOCIAL_BASE_URL"); v != "" {
		c.Social.BaseURL = v
	}
}

func (c *Config) applyDefaults() {
	if c.NATS.URL == "" {
		c.NATS.URL = "nats://127.0.0.1:4222"
	}
	if c.NATS.BatchSubject == "" {
		c.NATS.BatchSubject = "engine.posts.batch"
	}
	if c.NATS.ResultSubject == "" {
		c.NATS.ResultSubject = "engine.posts.result"
	}
	if c.Admin.Addr == "" {
		c.Admin.Addr = ":9090"
	}
	if c.MatchRadiusM <= 0 {
		c.MatchRadiusM = 10
	}
	if c.StaleDays <= 0 {
		c.StaleDays = 30
	}
	if c.Geocode.UserAgent == "" {
		c.Geocode.UserAgent = "propwatch/1.0"
	}
	if c.Runner.ActionDelay <= 0 {
		c.Runner.ActionDelay = 35 * time.Second
	}
	if c.Runner.RetryMargin <= 0 {
		c.Runner.RetryMargin = 5 * time.Second
	}
}

func (c *Config) validate() error {
	if c.Target == "" {
		return fmt.Errorf("config: target account is required")
	}
	if c.Paths.Dataset == "" {
		return fmt.Errorf("config: paths.dataset is required")
	}
	return nil
}

// StaleWindow returns the staleness window as a duration.
func (c *Config) StaleWindow() time.Duration {
	return time.Duration(c.StaleDays) * 24 * time.Hour
}
