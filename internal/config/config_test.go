package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const minimalConfig = `
[mail]
smtp_server = "smtp.example.com"
sender_email = "sender@example.com"
sender_password = "file-password"
receiver_email = "receiver@example.com"

[categories.rental]
forum_url = "https://c.dadi360.com/c/forums/show/87.page"
keywords = ["出租"]
interval_seconds = 600
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, minimalConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	dir := filepath.Dir(path)
	if cfg.DataDir != filepath.Join(dir, "data") {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.LogDir != filepath.Join(dir, "logs") {
		t.Errorf("LogDir = %q", cfg.LogDir)
	}
	if cfg.Fetch.UserAgent != "boardwatch/1.0" {
		t.Errorf("UserAgent = %q", cfg.Fetch.UserAgent)
	}
	if cfg.Fetch.TimeoutSeconds != 15 || cfg.Fetch.HostDelayMillis != 2000 {
		t.Errorf("fetch defaults = %+v", cfg.Fetch)
	}
	if cfg.Mail.Port != 587 {
		t.Errorf("Mail.Port = %d", cfg.Mail.Port)
	}
	if cfg.Ops.Port != 0 {
		t.Errorf("Ops.Port = %d, want disabled by default", cfg.Ops.Port)
	}

	cat := cfg.Categories["rental"]
	if cat.Pages != 5 {
		t.Errorf("Pages = %d", cat.Pages)
	}
	if cat.Extractor != "dadi360" {
		t.Errorf("Extractor = %q", cat.Extractor)
	}
	if cat.Subject == "" || !strings.Contains(cat.Subject, "rental") {
		t.Errorf("Subject = %q", cat.Subject)
	}
	if cat.SeenFile != filepath.Join(cfg.DataDir, "rental_sent_ids.json") {
		t.Errorf("SeenFile = %q", cat.SeenFile)
	}
	if cat.Interval().Seconds() != 600 {
		t.Errorf("Interval = %v", cat.Interval())
	}
}

func TestLoad_EnvPasswordOverridesFile(t *testing.T) {
	t.Setenv("BOARDWATCH_SMTP_PASSWORD", "env-password")
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mail.Password != "env-password" {
		t.Errorf("Password = %q, want env override", cfg.Mail.Password)
	}
}

func TestLoad_FilePasswordWhenEnvUnset(t *testing.T) {
	t.Setenv("BOARDWATCH_SMTP_PASSWORD", "")
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mail.Password != "file-password" {
		t.Errorf("Password = %q", cfg.Mail.Password)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "missing smtp server",
			content: strings.Replace(minimalConfig, `smtp_server = "smtp.example.com"`, "", 1),
			want:    "smtp_server is required",
		},
		{
			name:    "missing sender",
			content: strings.Replace(minimalConfig, `sender_email = "sender@example.com"`, "", 1),
			want:    "sender_email is required",
		},
		{
			name:    "missing receiver",
			content: strings.Replace(minimalConfig, `receiver_email = "receiver@example.com"`, "", 1),
			want:    "receiver_email is required",
		},
		{
			name: "no categories",
			content: `
[mail]
smtp_server = "smtp.example.com"
sender_email = "sender@example.com"
receiver_email = "receiver@example.com"
`,
			want: "no categories configured",
		},
		{
			name:    "malformed toml",
			content: "[mail\n",
			want:    "read config",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestCategory_Validate(t *testing.T) {
	valid := Category{
		ForumURL:        "https://c.dadi360.com/c/forums/show/87.page",
		Pages:           5,
		Keywords:        []string{"出租"},
		IntervalSeconds: 600,
	}
	if err := valid.Validate("rental"); err != nil {
		t.Fatalf("valid category rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Category)
		want   string
	}{
		{"no keywords", func(c *Category) { c.Keywords = nil }, "no keywords"},
		{"blank keywords", func(c *Category) { c.Keywords = []string{" ", ""} }, "no keywords"},
		{"no source", func(c *Category) { c.ForumURL = ""; c.URLs = nil }, "forum_url or urls"},
		{"zero interval", func(c *Category) { c.IntervalSeconds = 0 }, "interval_seconds"},
		{"negative interval", func(c *Category) { c.IntervalSeconds = -60 }, "interval_seconds"},
		{"zero pages", func(c *Category) { c.Pages = 0 }, "pages"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate("rental")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}

	t.Run("explicit urls satisfy source", func(t *testing.T) {
		c := valid
		c.ForumURL = ""
		c.URLs = []string{"https://c.dadi360.com/c/forums/show/87.page"}
		if err := c.Validate("rental"); err != nil {
			t.Errorf("urls-only category rejected: %v", err)
		}
	})
}
