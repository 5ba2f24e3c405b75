package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const baseYAML = `
version: 1
global:
  role: %s
  poll_interval: 2s
authority:
  private_key: ${AUTH_KEY}
networks:
  home:
    rpc_url: ${HOME_RPC}
    start_block: 100
  foreign:
    rpc_url: http://foreign-rpc
contracts:
  token:
    address: "0x1111111111111111111111111111111111111111"
  custodian:
    address: "0x2222222222222222222222222222222222222222"
  pool:
    address: "0x3333333333333333333333333333333333333333"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func withRole(role string) string { return strings.Replace(baseYAML, "%s", role, 1) }

func TestLoadInterpolatesEnvAndDefaults(t *testing.T) {
	t.Setenv("AUTH_KEY", "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	t.Setenv("HOME_RPC", "http://home-rpc")
	cfg, err := Load(writeConfig(t, withRole("master")))
	if err != nil {
		t.Fatalf("expected load to succeed: %v", err)
	}

	if got := cfg.Networks.Home.RPCURL; got != "http://home-rpc" {
		t.Fatalf("rpc_url not interpolated, got %q", got)
	}
	if cfg.Networks.Home.StartBlock != 100 {
		t.Fatalf("start_block = %d", cfg.Networks.Home.StartBlock)
	}
	if cfg.Global.PollInterval != 2*time.Second {
		t.Fatalf("poll_interval = %s", cfg.Global.PollInterval)
	}
	if cfg.Global.ReceiptTimeout != defaultReceiptTimeout {
		t.Fatalf("receipt_timeout = %s", cfg.Global.ReceiptTimeout)
	}
	if cfg.Global.CappedTxsPerCycle != defaultTxsPerCycle || cfg.Global.DBPath != defaultDBPath || cfg.Storage.Watermarks != "sqlite" {
		t.Fatalf("defaults not applied: %+v %+v", cfg.Global, cfg.Storage)
	}
}

func TestLoadFailsOnMissingEnv(t *testing.T) {
	if _, err := Load(writeConfig(t, withRole("master"))); err == nil {
		t.Fatalf("expected missing env to fail")
	}
}

func TestLoadAppliesBridgeOverrides(t *testing.T) {
	t.Setenv("AUTH_KEY", "aa")
	t.Setenv("HOME_RPC", "http://home-rpc")
	t.Setenv("BRIDGE_HOME_RPC_URL", "http://override-home")
	t.Setenv("BRIDGE_FOREIGN_RPC_URL", "http://override-foreign")
	t.Setenv("BRIDGE_AUTHORITY_PRIVATE_KEY", "bb")
	t.Setenv("BRIDGE_AUTHORITY_PASSWORD", "hunter2")
	t.Setenv("BRIDGE_LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, withRole("authority")))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Networks.Home.RPCURL != "http://override-home" || cfg.Networks.Foreign.RPCURL != "http://override-foreign" {
		t.Fatalf("rpc overrides not applied: %+v", cfg.Networks)
	}
	if cfg.Authority.PrivateKey != "bb" || cfg.Authority.Password != "hunter2" || cfg.Global.LogLevel != "debug" {
		t.Fatalf("overrides not applied: %+v %+v", cfg.Authority, cfg.Global)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(withRole("master")), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	env := "AUTH_KEY=cc\nHOME_RPC=http://dotenv-home\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("AUTH_KEY")
		os.Unsetenv("HOME_RPC")
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Networks.Home.RPCURL != "http://dotenv-home" {
		t.Fatalf("rpc_url = %q", cfg.Networks.Home.RPCURL)
	}
}

func validConfig() *Config {
	c := &Config{
		Version:   1,
		Authority: AuthorityConfig{PrivateKey: "aa"},
		Networks: Networks{
			Home:    Network{RPCURL: "http://home"},
			Foreign: Network{RPCURL: "http://foreign"},
		},
		Contracts: Contracts{
			Token:     Contract{Address: "0x1111111111111111111111111111111111111111"},
			Custodian: Contract{Address: "0x2222222222222222222222222222222222222222"},
			Pool:      Contract{Address: "0x3333333333333333333333333333333333333333"},
		},
	}
	c.applyDefaults()
	return c
}

func TestValidate(t *testing.T) {
	off := false
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing version", func(c *Config) { c.Version = 0 }, "version"},
		{"bad role", func(c *Config) { c.Global.Role = "observer" }, "role"},
		{"negative receipt timeout", func(c *Config) { c.Global.ReceiptTimeout = -time.Second }, "receipt_timeout"},
		{"negative enrich limit", func(c *Config) { c.Global.EnrichFailureLimit = -1 }, "enrich_failure_limit"},
		{"bad contract", func(c *Config) { c.Contracts.Pool.Address = "0x123" }, "contracts.pool"},
		{"no key", func(c *Config) { c.Authority = AuthorityConfig{} }, "authority"},
		{"keystore without password", func(c *Config) {
			c.Authority = AuthorityConfig{KeystoreDir: "/keys", Address: "0x4444444444444444444444444444444444444444"}
		}, "password"},
		{"missing rpc", func(c *Config) { c.Networks.Foreign.RPCURL = "" }, "networks.foreign"},
		{"redis without addr", func(c *Config) { c.Storage.Watermarks = "redis" }, "redis_addr"},
		{"unknown relay", func(c *Config) { c.Relays = []Relay{{Name: "bogus"}} }, "relay bogus"},
		{"relay outside role", func(c *Config) {
			c.Global.Role = RoleAuthority
			c.Relays = []Relay{{Name: Deposit}}
		}, "relay deposit"},
		{"duplicate relay", func(c *Config) {
			c.Relays = []Relay{{Name: Claim}, {Name: Claim, Enabled: &off}}
		}, "duplicate relay"},
		{"unknown sink", func(c *Config) { c.Relays = []Relay{{Name: Claim, Sinks: []string{"ops"}}} }, "unknown sink"},
		{"bad sink", func(c *Config) { c.Sinks = []Sink{{ID: "ops", Type: "slack"}} }, "webhook_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestPipelinesByRole(t *testing.T) {
	c := validConfig()
	names := func(rs []Relay) string {
		var out []string
		for _, r := range rs {
			out = append(out, r.Name)
		}
		return strings.Join(out, ",")
	}

	if got := names(c.Pipelines()); got != "deposit_check,deposit,withdraw_confirm,withdraw,claim,claim_success" {
		t.Fatalf("master pipelines = %s", got)
	}

	c.Global.Role = RoleAuthority
	if got := names(c.Pipelines()); got != "withdraw_confirm,withdraw" {
		t.Fatalf("authority pipelines = %s", got)
	}

	off := false
	c.Relays = []Relay{{Name: Withdraw, Enabled: &off}, {Name: WithdrawConfirm, MaxBatch: 3, Where: []string{"_payoutAmount > 0"}}}
	rs := c.Pipelines()
	if names(rs) != "withdraw_confirm" {
		t.Fatalf("pipelines = %s", names(rs))
	}
	if rs[0].MaxBatch != 3 || len(rs[0].Where) != 1 {
		t.Fatalf("relay overrides lost: %+v", rs[0])
	}
}

func TestPipelinesDefaultBatch(t *testing.T) {
	c := validConfig()
	c.Global.CappedTxsPerCycle = 4
	for _, r := range c.Pipelines() {
		if r.MaxBatch != 4 {
			t.Fatalf("%s max batch = %d", r.Name, r.MaxBatch)
		}
	}
}
