package postgres

import (
	"testing"
	"time"

	"github.com/flowmesh-io/flowmesh/core"
)

// Interface compliance (compile-time assertion)
var _ core.RunStore = (*Store)(nil)

func TestConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
	if cfg.MaxOpenConns != 10 || cfg.MaxIdleConns != 5 {
		t.Fatalf("unexpected pool defaults: %+v", cfg)
	}
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("FLOWMESH_DATABASE_URL", "postgres://app:app@db:5432/app")
	t.Setenv("FLOWMESH_DATABASE_MAX_OPEN_CONNS", "20")
	t.Setenv("FLOWMESH_DATABASE_PING_TIMEOUT", "5s")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if cfg.URL != "postgres://app:app@db:5432/app" {
		t.Fatalf("URL not overridden: %s", cfg.URL)
	}
	if cfg.MaxOpenConns != 20 {
		t.Fatalf("MaxOpenConns not overridden: %d", cfg.MaxOpenConns)
	}
	if cfg.PingTimeout != 5*time.Second {
		t.Fatalf("PingTimeout not overridden: %s", cfg.PingTimeout)
	}
}

func TestConfigFromEnv_ParseError(t *testing.T) {
	t.Setenv("FLOWMESH_DATABASE_MAX_OPEN_CONNS", "plenty")

	if _, err := ConfigFromEnv(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	base := Config{
		URL:          "postgres://localhost/flowmesh",
		PingTimeout:  time.Second,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty url", func(c *Config) { c.URL = "" }},
		{"zero ping timeout", func(c *Config) { c.PingTimeout = 0 }},
		{"zero open conns", func(c *Config) { c.MaxOpenConns = 0 }},
		{"negative idle conns", func(c *Config) { c.MaxIdleConns = -1 }},
		{"idle above open", func(c *Config) { c.MaxIdleConns = 11 }},
		{"negative lifetime", func(c *Config) { c.ConnMaxLifetime = -time.Second }},
		{"negative idle time", func(c *Config) { c.ConnMaxIdleTime = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestNewStore_NilDB(t *testing.T) {
	if s := NewStore(nil); s != nil {
		t.Fatalf("expected nil store for nil db, got %v", s)
	}
}
