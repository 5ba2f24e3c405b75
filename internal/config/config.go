package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	ethav "github.com/KOREAN139/ethereum-address-validator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Relay names.
const (
	DepositCheck    = "deposit_check"
	Deposit         = "deposit"
	WithdrawConfirm = "withdraw_confirm"
	Withdraw        = "withdraw"
	Claim           = "claim"
	ClaimSuccess    = "claim_success"
)

// Roles.
const (
	RoleMaster    = "master"
	RoleAuthority = "authority"
)

var roleRelays = map[string][]string{
	RoleMaster:    {DepositCheck, Deposit, WithdrawConfirm, Withdraw, Claim, ClaimSuccess},
	RoleAuthority: {WithdrawConfirm, Withdraw},
}

const (
	defaultDBPath         = "bridge-relay.db"
	defaultPollInterval   = 5 * time.Second
	defaultReceiptTimeout = 750 * time.Second
	defaultTxsPerCycle    = 10
	defaultGas            = 500000
	defaultGasPrice       = 1000000000
)

// Config holds the YAML configuration.
type Config struct {
	Version   int             `yaml:"version"`
	Global    GlobalConfig    `yaml:"global"`
	Authority AuthorityConfig `yaml:"authority"`
	Networks  Networks        `yaml:"networks"`
	Contracts Contracts       `yaml:"contracts"`
	Storage   StorageConfig   `yaml:"storage"`
	Relays    []Relay         `yaml:"relays"`
	Sinks     []Sink          `yaml:"sinks"`
}

// GlobalConfig holds process-wide settings. EnrichFailureLimit drops a queue head
// after that many consecutive failed enrichment reads; zero keeps retrying.
type GlobalConfig struct {
	DBPath             string        `yaml:"db_path"`
	Role               string        `yaml:"role"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	ReceiptTimeout     time.Duration `yaml:"receipt_timeout"`
	CappedTxsPerCycle  int           `yaml:"capped_txs_per_cycle"`
	EnrichFailureLimit int           `yaml:"enrich_failure_limit"`
	DefaultGas         uint64        `yaml:"default_gas"`
	DefaultGasPrice    uint64        `yaml:"default_gas_price"`
	LogLevel           string        `yaml:"log_level"`
	LogFormat          string        `yaml:"log_format"`
}

// AuthorityConfig locates the signing key: either a raw hex key or an encrypted
// keystore plus its password.
type AuthorityConfig struct {
	Address      string `yaml:"address"`
	KeystoreDir  string `yaml:"keystore_dir"`
	PasswordFile string `yaml:"password_file"`
	PrivateKey   string `yaml:"private_key"`
	Password     string `yaml:"-"`
}

type Networks struct {
	Home    Network `yaml:"home"`
	Foreign Network `yaml:"foreign"`
}

type Network struct {
	RPCURL     string `yaml:"rpc_url"`
	ChainID    uint64 `yaml:"chain_id"`
	StartBlock uint64 `yaml:"start_block"`
}

type Contracts struct {
	Token     Contract `yaml:"token"`
	Custodian Contract `yaml:"custodian"`
	Pool      Contract `yaml:"pool"`
}

type Contract struct {
	Address string `yaml:"address"`
	ABI     string `yaml:"abi"`
}

type StorageConfig struct {
	Watermarks string `yaml:"watermarks"`
	RedisAddr  string `yaml:"redis_addr"`
	RedisDB    int    `yaml:"redis_db"`
}

type Relay struct {
	Name     string   `yaml:"name"`
	Enabled  *bool    `yaml:"enabled"`
	Where    []string `yaml:"where"`
	Sinks    []string `yaml:"sinks"`
	MaxBatch int      `yaml:"max_batch"`
}

type Sink struct {
	ID         string `yaml:"id"`
	Type       string `yaml:"type"`
	WebhookURL string `yaml:"webhook_url"`
	Template   string `yaml:"template"`
	URL        string `yaml:"url"`
	Method     string `yaml:"method"`
}

// envOverrides are read from BRIDGE_* variables after the file is parsed.
type envOverrides struct {
	HomeRPCURL          string `envconfig:"HOME_RPC_URL"`
	ForeignRPCURL       string `envconfig:"FOREIGN_RPC_URL"`
	AuthorityPrivateKey string `envconfig:"AUTHORITY_PRIVATE_KEY"`
	AuthorityPassword   string `envconfig:"AUTHORITY_PASSWORD"`
	LogLevel            string `envconfig:"LOG_LEVEL"`
}

var envPattern = regexp.MustCompile(`\${([A-Za-z_][A-Za-z0-9_]*)}`)

// Load reads, interpolates env vars, parses YAML, applies BRIDGE_* overrides and validates.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}

	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	interpolated, err := interpolateEnv(string(raw))
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv(configPath string) error {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

func interpolateEnv(input string) (string, error) {
	missing := []string{}
	out := envPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing environment variables: %s", strings.Join(dedup(missing), ", "))
	}
	return out, nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process("BRIDGE", &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	if env.HomeRPCURL != "" {
		c.Networks.Home.RPCURL = env.HomeRPCURL
	}
	if env.ForeignRPCURL != "" {
		c.Networks.Foreign.RPCURL = env.ForeignRPCURL
	}
	if env.AuthorityPrivateKey != "" {
		c.Authority.PrivateKey = env.AuthorityPrivateKey
	}
	if env.AuthorityPassword != "" {
		c.Authority.Password = env.AuthorityPassword
	}
	if env.LogLevel != "" {
		c.Global.LogLevel = env.LogLevel
	}
	return nil
}

func (c *Config) applyDefaults() {
	g := &c.Global
	if g.DBPath == "" {
		g.DBPath = defaultDBPath
	}
	if g.Role == "" {
		g.Role = RoleMaster
	}
	g.Role = strings.ToLower(g.Role)
	if g.PollInterval == 0 {
		g.PollInterval = defaultPollInterval
	}
	if g.ReceiptTimeout == 0 {
		g.ReceiptTimeout = defaultReceiptTimeout
	}
	if g.CappedTxsPerCycle == 0 {
		g.CappedTxsPerCycle = defaultTxsPerCycle
	}
	if g.DefaultGas == 0 {
		g.DefaultGas = defaultGas
	}
	if g.DefaultGasPrice == 0 {
		g.DefaultGasPrice = defaultGasPrice
	}
	if g.LogLevel == "" {
		g.LogLevel = "info"
	}
	if g.LogFormat == "" {
		g.LogFormat = "text"
	}
	if c.Storage.Watermarks == "" {
		c.Storage.Watermarks = "sqlite"
	}
}

// Validate performs small, direct schema checks.
func (c *Config) Validate() error {
	if c.Version == 0 {
		return errors.New("version is required")
	}
	if _, ok := roleRelays[c.Global.Role]; !ok {
		return fmt.Errorf("unsupported role: %s", c.Global.Role)
	}
	if c.Global.PollInterval < 0 || c.Global.CappedTxsPerCycle < 0 {
		return errors.New("poll_interval and capped_txs_per_cycle must not be negative")
	}
	if c.Global.ReceiptTimeout < 0 {
		return errors.New("receipt_timeout must not be negative")
	}
	if c.Global.EnrichFailureLimit < 0 {
		return errors.New("enrich_failure_limit must not be negative")
	}
	if err := c.Authority.Validate(); err != nil {
		return fmt.Errorf("authority: %w", err)
	}
	if err := c.Networks.Home.Validate(); err != nil {
		return fmt.Errorf("networks.home: %w", err)
	}
	if err := c.Networks.Foreign.Validate(); err != nil {
		return fmt.Errorf("networks.foreign: %w", err)
	}
	for name, ct := range map[string]Contract{
		"token":     c.Contracts.Token,
		"custodian": c.Contracts.Custodian,
		"pool":      c.Contracts.Pool,
	} {
		if err := validateAddress(ct.Address); err != nil {
			return fmt.Errorf("contracts.%s: %w", name, err)
		}
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	sinkIDs := map[string]*Sink{}
	for i := range c.Sinks {
		s := &c.Sinks[i]
		if _, exists := sinkIDs[s.ID]; exists {
			return fmt.Errorf("duplicate sink id: %s", s.ID)
		}
		sinkIDs[s.ID] = s
		if err := s.Validate(); err != nil {
			return fmt.Errorf("sink %s: %w", s.ID, err)
		}
	}

	allowed := map[string]struct{}{}
	for _, name := range roleRelays[c.Global.Role] {
		allowed[name] = struct{}{}
	}
	seen := map[string]struct{}{}
	for _, r := range c.Relays {
		if _, dup := seen[r.Name]; dup {
			return fmt.Errorf("duplicate relay: %s", r.Name)
		}
		seen[r.Name] = struct{}{}
		if err := r.Validate(allowed, sinkIDs); err != nil {
			return fmt.Errorf("relay %s: %w", r.Name, err)
		}
	}

	return nil
}

func (a *AuthorityConfig) Validate() error {
	if a.PrivateKey != "" {
		if a.Address != "" {
			return validateAddress(a.Address)
		}
		return nil
	}
	if a.KeystoreDir == "" {
		return errors.New("private_key or keystore_dir is required")
	}
	if err := validateAddress(a.Address); err != nil {
		return fmt.Errorf("address: %w", err)
	}
	if a.PasswordFile == "" && a.Password == "" {
		return errors.New("password_file or BRIDGE_AUTHORITY_PASSWORD is required with keystore_dir")
	}
	return nil
}

func (n *Network) Validate() error {
	if n.RPCURL == "" {
		return errors.New("rpc_url is required")
	}
	return nil
}

func (s *StorageConfig) Validate() error {
	switch strings.ToLower(s.Watermarks) {
	case "sqlite":
	case "redis":
		if s.RedisAddr == "" {
			return errors.New("redis_addr is required for redis watermarks")
		}
	default:
		return fmt.Errorf("unsupported watermarks store: %s", s.Watermarks)
	}
	return nil
}

func (r *Relay) Validate(allowed map[string]struct{}, sinkIDs map[string]*Sink) error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	if _, ok := allowed[r.Name]; !ok {
		return errors.New("unknown relay or not run by this role")
	}
	if r.MaxBatch < 0 {
		return errors.New("max_batch must not be negative")
	}
	for _, sinkID := range r.Sinks {
		if _, ok := sinkIDs[sinkID]; !ok {
			return fmt.Errorf("unknown sink: %s", sinkID)
		}
	}
	return nil
}

func (s *Sink) Validate() error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.Type == "" {
		return errors.New("type is required")
	}

	switch strings.ToLower(s.Type) {
	case "slack", "teams":
		if s.WebhookURL == "" {
			return errors.New("webhook_url is required for slack/teams sinks")
		}
	case "webhook":
		if s.URL == "" {
			return errors.New("url is required for webhook sink")
		}
		if s.Method == "" {
			s.Method = "POST"
		}
	default:
		return fmt.Errorf("unsupported sink type: %s", s.Type)
	}
	return nil
}

// Endpoint returns the URL the sink posts to.
func (s *Sink) Endpoint() string {
	if s.WebhookURL != "" {
		return s.WebhookURL
	}
	return s.URL
}

// Pipelines returns the relays to run for the configured role, in a fixed order.
// Relays not listed under relays[] run with defaults; enabled: false turns one off.
func (c *Config) Pipelines() []Relay {
	byName := map[string]Relay{}
	for _, r := range c.Relays {
		byName[r.Name] = r
	}
	var out []Relay
	for _, name := range roleRelays[c.Global.Role] {
		r, ok := byName[name]
		if !ok {
			r = Relay{Name: name}
		}
		if r.Enabled != nil && !*r.Enabled {
			continue
		}
		if r.MaxBatch == 0 {
			r.MaxBatch = c.Global.CappedTxsPerCycle
		}
		out = append(out, r)
	}
	return out
}

func validateAddress(addr string) error {
	if !common.IsHexAddress(addr) {
		return fmt.Errorf("invalid address %q", addr)
	}
	if err := ethav.Validate(common.HexToAddress(addr).Hex()); err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	return nil
}

func dedup(values []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
