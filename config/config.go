// Package config loads the service configuration from a key = value file,
// overlays HASHDRIVE_* environment variables and validates the result.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every setting of a hashdrive node. Secrets (SignKey) are
// read from the environment only and never written to the config file.
type Config struct {
	DataDir    string `env:"HASHDRIVE_DATADIR"`
	ListenAddr string `env:"HASHDRIVE_LISTEN"`
	Network    string `env:"HASHDRIVE_NETWORK"`
	LogLevel   string `env:"HASHDRIVE_LOG_LEVEL"`
	LogFile    string `env:"HASHDRIVE_LOG_FILE"`

	// Ledger selects the backend: "rpc" for a FileRegistry contract on an
	// EVM node, "memory" for an in-process ledger.
	Ledger          string        `env:"HASHDRIVE_LEDGER"`
	RPCURL          string        `env:"HASHDRIVE_RPC_URL"`
	RPCUser         string        `env:"HASHDRIVE_RPC_USER"`
	RPCPassword     string        `env:"HASHDRIVE_RPC_PASSWORD"`
	Contract        string        `env:"HASHDRIVE_CONTRACT"`
	LedgerDomain    string        `env:"HASHDRIVE_LEDGER_DOMAIN"`
	DNSSECResolver  string        `env:"HASHDRIVE_DNSSEC_RESOLVER"`
	SignKey         string        `env:"HASHDRIVE_SIGN_KEY"`
	RPCTimeout      time.Duration `env:"HASHDRIVE_RPC_TIMEOUT"`
	ConfirmTimeout  time.Duration `env:"HASHDRIVE_CONFIRM_TIMEOUT"`
	GasLimitCap     uint64        `env:"HASHDRIVE_GAS_LIMIT_CAP"`
	GasPriceCapGwei uint64        `env:"HASHDRIVE_GAS_PRICE_CAP_GWEI"`
	RetryAttempts   uint          `env:"HASHDRIVE_RETRY_ATTEMPTS"`
	MaxReads        int64         `env:"HASHDRIVE_MAX_READS"`

	Owners            []string      `env:"HASHDRIVE_OWNERS" envSeparator:","`
	ChallengeTTL      time.Duration `env:"HASHDRIVE_CHALLENGE_TTL"`
	MaxUploadBytes    int64         `env:"HASHDRIVE_MAX_UPLOAD_BYTES"`
	CORSOrigins       []string      `env:"HASHDRIVE_CORS_ORIGINS" envSeparator:","`
	NonceRate         float64       `env:"HASHDRIVE_NONCE_RATE"`
	NonceBurst        int           `env:"HASHDRIVE_NONCE_BURST"`
	OrphanGrace       time.Duration `env:"HASHDRIVE_ORPHAN_GRACE"`
	ReconcileInterval time.Duration `env:"HASHDRIVE_RECONCILE_INTERVAL"`
	OTLPEndpoint      string        `env:"HASHDRIVE_OTLP_ENDPOINT"`
}

// DefaultConfig returns a Config populated with sensible defaults. The
// default ledger is in-memory; set Ledger to "rpc" with a Contract to use
// a FileRegistry deployment.
func DefaultConfig() Config {
	return Config{
		DataDir:    DefaultDataDir(),
		ListenAddr: ":8080",
		Network:    "localhost",
		LogLevel:   "info",

		Ledger:          "memory",
		RPCTimeout:      10 * time.Second,
		ConfirmTimeout:  2 * time.Minute,
		GasLimitCap:     2_000_000,
		GasPriceCapGwei: 200,
		RetryAttempts:   4,
		MaxReads:        16,

		ChallengeTTL:      5 * time.Minute,
		MaxUploadBytes:    100 << 20,
		CORSOrigins:       []string{"http://localhost:3000"},
		NonceRate:         1,
		NonceBurst:        5,
		OrphanGrace:       time.Hour,
		ReconcileInterval: 5 * time.Minute,
	}
}

// DefaultDataDir returns ~/.hashdrive, or .hashdrive in the working
// directory when the home directory cannot be determined.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hashdrive"
	}
	return filepath.Join(home, ".hashdrive")
}

// ConfigPath returns the config file path inside dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config")
}

// UploadDir returns the directory holding uploaded files.
func (c Config) UploadDir() string {
	return filepath.Join(c.DataDir, "uploads")
}

// DBPath returns the path of the bbolt database.
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, "hashdrive.db")
}

// field binds a config file key to a Config field.
type field struct {
	key string
	get func(*Config) string
	set func(*Config, string) error
}

func stringField(key string, p func(*Config) *string) field {
	return field{
		key: key,
		get: func(c *Config) string { return *p(c) },
		set: func(c *Config, v string) error { *p(c) = v; return nil },
	}
}

func durationField(key string, p func(*Config) *time.Duration) field {
	return field{
		key: key,
		get: func(c *Config) string { return p(c).String() },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			*p(c) = d
			return nil
		},
	}
}

func intField[T int | int64 | uint | uint64](key string, p func(*Config) *T) field {
	return field{
		key: key,
		get: func(c *Config) string { return fmt.Sprint(*p(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return err
			}
			if n < 0 {
				return fmt.Errorf("negative value %d", n)
			}
			*p(c) = T(n)
			return nil
		},
	}
}

func listField(key string, p func(*Config) *[]string) field {
	return field{
		key: key,
		get: func(c *Config) string { return strings.Join(*p(c), ",") },
		set: func(c *Config, v string) error {
			*p(c) = splitList(v)
			return nil
		},
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// fields lists the persisted keys in file order.
var fields = []field{
	stringField("datadir", func(c *Config) *string { return &c.DataDir }),
	stringField("listen", func(c *Config) *string { return &c.ListenAddr }),
	stringField("network", func(c *Config) *string { return &c.Network }),
	stringField("loglevel", func(c *Config) *string { return &c.LogLevel }),
	stringField("logfile", func(c *Config) *string { return &c.LogFile }),
	stringField("ledger", func(c *Config) *string { return &c.Ledger }),
	stringField("rpc_url", func(c *Config) *string { return &c.RPCURL }),
	stringField("rpc_user", func(c *Config) *string { return &c.RPCUser }),
	stringField("rpc_password", func(c *Config) *string { return &c.RPCPassword }),
	stringField("contract", func(c *Config) *string { return &c.Contract }),
	stringField("ledger_domain", func(c *Config) *string { return &c.LedgerDomain }),
	stringField("dnssec_resolver", func(c *Config) *string { return &c.DNSSECResolver }),
	durationField("rpc_timeout", func(c *Config) *time.Duration { return &c.RPCTimeout }),
	durationField("confirm_timeout", func(c *Config) *time.Duration { return &c.ConfirmTimeout }),
	intField("gas_limit_cap", func(c *Config) *uint64 { return &c.GasLimitCap }),
	intField("gas_price_cap_gwei", func(c *Config) *uint64 { return &c.GasPriceCapGwei }),
	intField("retry_attempts", func(c *Config) *uint { return &c.RetryAttempts }),
	intField("max_reads", func(c *Config) *int64 { return &c.MaxReads }),
	listField("owners", func(c *Config) *[]string { return &c.Owners }),
	durationField("challenge_ttl", func(c *Config) *time.Duration { return &c.ChallengeTTL }),
	intField("max_upload_bytes", func(c *Config) *int64 { return &c.MaxUploadBytes }),
	listField("cors_origins", func(c *Config) *[]string { return &c.CORSOrigins }),
	{
		key: "nonce_rate",
		get: func(c *Config) string { return strconv.FormatFloat(c.NonceRate, 'f', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			c.NonceRate = f
			return nil
		},
	},
	intField("nonce_burst", func(c *Config) *int { return &c.NonceBurst }),
	durationField("orphan_grace", func(c *Config) *time.Duration { return &c.OrphanGrace }),
	durationField("reconcile_interval", func(c *Config) *time.Duration { return &c.ReconcileInterval }),
	stringField("otlp_endpoint", func(c *Config) *string { return &c.OTLPEndpoint }),
}

var fieldsByKey = func() map[string]field {
	m := make(map[string]field, len(fields))
	for _, f := range fields {
		m[f.key] = f
	}
	return m
}()

// LoadConfig reads a key = value config file. Keys missing from the file
// keep their DefaultConfig value; unknown keys are ignored so that older
// binaries can read newer files. Lines starting with # are comments.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return Config{}, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	cfg := DefaultConfig()
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return Config{}, fmt.Errorf("%w: line %d: %q", ErrInvalidConfigLine, lineNo, line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		fd, known := fieldsByKey[key]
		if !known {
			continue
		}
		if err := fd.set(&cfg, value); err != nil {
			return Config{}, fmt.Errorf("%w: line %d: %s: %w", ErrInvalidValue, lineNo, key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path, creating parent directories as needed.
// SignKey is never written.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("# HashDrive Configuration\n")
	for _, fd := range fields {
		fmt.Fprintf(&b, "%s = %s\n", fd.key, fd.get(&cfg))
	}

	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// ApplyEnvFrom overlays the HASHDRIVE_* variables of environ onto cfg.
// Variables that are not set leave the field untouched.
func ApplyEnvFrom(cfg *Config, environ map[string]string) error {
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
