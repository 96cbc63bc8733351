// Package config loads and validates the boardwatch configuration file.
// Configuration is read once at startup and never mutated at runtime.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const smtpPasswordEnv = "BOARDWATCH_SMTP_PASSWORD"

type Config struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`

	Fetch      Fetch               `toml:"fetch"`
	Mail       Mail                `toml:"mail"`
	Ops        Ops                 `toml:"ops"`
	Categories map[string]Category `toml:"categories"`
}

type Fetch struct {
	UserAgent       string            `toml:"user_agent"`
	TimeoutSeconds  int               `toml:"timeout_seconds"`
	Headers         map[string]string `toml:"headers"`
	RespectRobots   bool              `toml:"respect_robots"`
	HostDelayMillis int               `toml:"host_delay_millis"`
}

func (f Fetch) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

func (f Fetch) HostDelay() time.Duration {
	return time.Duration(f.HostDelayMillis) * time.Millisecond
}

type Mail struct {
	Server   string `toml:"smtp_server"`
	Port     int    `toml:"smtp_port"`
	Sender   string `toml:"sender_email"`
	Password string `toml:"sender_password"`
	Receiver string `toml:"receiver_email"`
}

type Ops struct {
	Port int `toml:"port"` // 0 disables the ops server
}

// Category is one independently scheduled scrape target.
type Category struct {
	ForumURL          string   `toml:"forum_url"`
	URLs              []string `toml:"urls"` // explicit page list, overrides forum_url paging
	Pages             int      `toml:"pages"`
	Keywords          []string `toml:"keywords"`
	Subject           string   `toml:"subject"`
	IntervalSeconds   int      `toml:"interval_seconds"`
	Extractor         string   `toml:"extractor"`
	FetchDescriptions bool     `toml:"fetch_descriptions"`
	SeenFile          string   `toml:"seen_file"`
}

func (c Category) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Validate reports the first configuration error of the category. A failing
// category is skipped at startup; it must not take the others down.
func (c Category) Validate(name string) error {
	if len(c.Keywords) == 0 {
		return fmt.Errorf("category %s: no keywords configured", name)
	}
	allEmpty := true
	for _, kw := range c.Keywords {
		if strings.TrimSpace(kw) != "" {
			allEmpty = false
			break
		}
	}
	if allEmpty {
		return fmt.Errorf("category %s: no keywords configured", name)
	}
	if c.ForumURL == "" && len(c.URLs) == 0 {
		return fmt.Errorf("category %s: needs forum_url or urls", name)
	}
	if c.IntervalSeconds <= 0 {
		return fmt.Errorf("category %s: interval_seconds must be positive", name)
	}
	if c.Pages < 1 {
		return fmt.Errorf("category %s: pages must be at least 1", name)
	}
	return nil
}

// Load reads the TOML config at path. A .env file next to the process, if
// present, is loaded first; BOARDWATCH_SMTP_PASSWORD always wins over the
// password in the file so credentials can stay out of it.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	if pw := os.Getenv(smtpPasswordEnv); pw != "" {
		cfg.Mail.Password = pw
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults(baseDir string) {
	if c.DataDir == "" {
		c.DataDir = filepath.Join(baseDir, "data")
	}
	if c.LogDir == "" {
		c.LogDir = filepath.Join(baseDir, "logs")
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "boardwatch/1.0"
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		c.Fetch.TimeoutSeconds = 15
	}
	if c.Fetch.HostDelayMillis <= 0 {
		c.Fetch.HostDelayMillis = 2000
	}
	if c.Mail.Port == 0 {
		c.Mail.Port = 587
	}

	for name, cat := range c.Categories {
		if cat.Pages == 0 {
			cat.Pages = 5
		}
		if cat.Extractor == "" {
			cat.Extractor = "dadi360"
		}
		if cat.Subject == "" {
			cat.Subject = fmt.Sprintf("[boardwatch] new %s postings", name)
		}
		if cat.SeenFile == "" {
			cat.SeenFile = filepath.Join(c.DataDir, name+"_sent_ids.json")
		}
		c.Categories[name] = cat
	}
}

// validate covers the process-wide settings. Category errors are reported
// per category at startup, not here.
func (c *Config) validate() error {
	if c.Mail.Server == "" {
		return errors.New("mail: smtp_server is required")
	}
	if c.Mail.Sender == "" {
		return errors.New("mail: sender_email is required")
	}
	if c.Mail.Receiver == "" {
		return errors.New("mail: receiver_email is required")
	}
	if len(c.Categories) == 0 {
		return errors.New("no categories configured")
	}
	return nil
}
