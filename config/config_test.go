package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ListenAddr != ":8080" || cfg.Network != "localhost" || cfg.Ledger != "memory" {
		t.Errorf("listen/network/ledger = %q/%q/%q", cfg.ListenAddr, cfg.Network, cfg.Ledger)
	}
	if cfg.ChallengeTTL != 5*time.Minute {
		t.Errorf("ChallengeTTL = %v, want 5m", cfg.ChallengeTTL)
	}
	if !reflect.DeepEqual(cfg.CORSOrigins, []string{"http://localhost:3000"}) {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if !strings.HasSuffix(cfg.DataDir, ".hashdrive") {
		t.Errorf("DataDir = %q, want suffix .hashdrive", cfg.DataDir)
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("ValidateConfig(DefaultConfig()) = %v", err)
	}
}

func TestConfigPath(t *testing.T) {
	for _, dir := range []string{"/srv/hashdrive", "/srv/hashdrive/"} {
		if got := ConfigPath(dir); got != filepath.Join("/srv/hashdrive", "config") {
			t.Errorf("ConfigPath(%q) = %q", dir, got)
		}
	}
}

func TestLoadConfig_Parsing(t *testing.T) {
	tests := []struct {
		name    string
		content string
		check   func(Config) bool
	}{
		{
			name:    "comments_and_blanks",
			content: "# node settings\nledger = rpc\n\n# reads\nmax_reads = 3\n",
			check:   func(c Config) bool { return c.Ledger == "rpc" && c.MaxReads == 3 && c.ListenAddr == ":8080" },
		},
		{
			name:    "unknown_keys_ignored",
			content: "replication = 3\nnetwork = sepolia\n",
			check:   func(c Config) bool { return c.Network == "sepolia" },
		},
		{
			name:    "empty_value_clears_field",
			content: "cors_origins =\n",
			check:   func(c Config) bool { return len(c.CORSOrigins) == 0 },
		},
		{
			name:    "value_split_on_first_equals",
			content: "rpc_url = http://node:8545/?key=abc\n",
			check:   func(c Config) bool { return c.RPCURL == "http://node:8545/?key=abc" },
		},
		{
			name:    "surrounding_whitespace",
			content: "   challenge_ttl   =   45s   \n",
			check:   func(c Config) bool { return c.ChallengeTTL == 45*time.Second },
		},
		{
			name:    "list_entries_trimmed",
			content: "owners = 0x7e5f4552091a69125d5dfcb7b8c2659029395bdf , ,0x2b5ad5c4795c026514f8317c7a215e218dccd6cf\n",
			check:   func(c Config) bool { return len(c.Owners) == 2 },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadConfig(writeConfig(t, tc.content))
			if err != nil {
				t.Fatalf("LoadConfig: %v", err)
			}
			if !tc.check(cfg) {
				t.Errorf("unexpected config %+v", cfg)
			}
		})
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("missing file: got %v, want ErrConfigNotFound", err)
	}
	if _, err := LoadConfig(writeConfig(t, "ledger rpc\n")); !errors.Is(err, ErrInvalidConfigLine) {
		t.Errorf("bad line: got %v, want ErrInvalidConfigLine", err)
	}
}

func TestLoadConfig_Unreadable(t *testing.T) {
	if runtime.GOOS == "windows" || os.Getuid() == 0 {
		t.Skip("file permissions are not enforced")
	}
	path := writeConfig(t, "ledger = memory\n")
	if err := os.Chmod(path, 0); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(path, 0600) })

	_, err := LoadConfig(path)
	if err == nil || errors.Is(err, ErrConfigNotFound) {
		t.Errorf("LoadConfig unreadable: got %v", err)
	}
}

func TestSaveConfig_Format(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config")
	if err := SaveConfig(path, DefaultConfig()); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)

	if !strings.HasPrefix(content, "# HashDrive Configuration\n") {
		t.Error("missing header line")
	}
	for _, fd := range fields {
		if !strings.Contains(content, "\n"+fd.key+" = ") {
			t.Errorf("missing key %q", fd.key)
		}
	}
	if strings.Contains(content, "sign_key") {
		t.Error("signing key must not be written")
	}
}

func TestValidateConfig_General(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr error
	}{
		{"empty_datadir", func(c *Config) { c.DataDir = "" }, ErrEmptyDataDir},
		{"unknown_network", func(c *Config) { c.Network = "goerli" }, ErrInvalidNetwork},
		{"empty_network", func(c *Config) { c.Network = "" }, ErrInvalidNetwork},
		{"sepolia", func(c *Config) { c.Network = "sepolia" }, nil},
		{"mainnet_memory", func(c *Config) { c.Network = "mainnet" }, nil},
		{"listen_without_port", func(c *Config) { c.ListenAddr = "localhost" }, ErrInvalidListenAddr},
		{"empty_listen", func(c *Config) { c.ListenAddr = "" }, ErrInvalidListenAddr},
		{"listen_ipv6", func(c *Config) { c.ListenAddr = "[::1]:8080" }, nil},
		{"listen_host", func(c *Config) { c.ListenAddr = "127.0.0.1:9000" }, nil},
		{"unknown_level", func(c *Config) { c.LogLevel = "trace" }, ErrInvalidLogLevel},
		{"mixed_case_level", func(c *Config) { c.LogLevel = "Warn" }, nil},
		{"upper_case_level", func(c *Config) { c.LogLevel = "DEBUG" }, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(&cfg)
			err := ValidateConfig(cfg)
			if tc.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateConfig: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("ValidateConfig: got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestSaveLoadRoundTrip_AllKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")

	original := DefaultConfig()
	original.Ledger = "rpc"
	original.RPCURL = "https://rpc.example.org"
	original.Contract = "0x5fbdb2315678afecb367f032d93f642f64180aa3"
	original.Owners = []string{"0x7e5f4552091a69125d5dfcb7b8c2659029395bdf", "0x2b5ad5c4795c026514f8317c7a215e218dccd6cf"}
	original.ChallengeTTL = 90 * time.Second
	original.NonceRate = 0.5
	original.GasPriceCapGwei = 42
	original.SignKey = "0x01"

	if err := SaveConfig(path, original); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "0x01") {
		t.Error("SaveConfig must not persist the signing key")
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	original.SignKey = ""
	if !reflect.DeepEqual(loaded, original) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, original)
	}
}

func TestLoadConfig_InvalidValue(t *testing.T) {
	for _, line := range []string{"rpc_timeout = soon", "max_upload_bytes = -1", "nonce_rate = fast"} {
		t.Run(line, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config")
			if err := os.WriteFile(path, []byte(line+"\n"), 0600); err != nil {
				t.Fatal(err)
			}
			_, err := LoadConfig(path)
			if !errors.Is(err, ErrInvalidValue) {
				t.Errorf("LoadConfig(%q): got %v, want ErrInvalidValue", line, err)
			}
		})
	}
}

func TestApplyEnvFrom(t *testing.T) {
	cfg := DefaultConfig()
	err := ApplyEnvFrom(&cfg, map[string]string{
		"HASHDRIVE_LEDGER":         "rpc",
		"HASHDRIVE_CONTRACT":       "0x5fbdb2315678afecb367f032d93f642f64180aa3",
		"HASHDRIVE_SIGN_KEY":       "0xabc",
		"HASHDRIVE_OWNERS":         "0x7e5f4552091a69125d5dfcb7b8c2659029395bdf,0x2b5ad5c4795c026514f8317c7a215e218dccd6cf",
		"HASHDRIVE_CHALLENGE_TTL":  "30s",
		"HASHDRIVE_MAX_READS":      "4",
		"HASHDRIVE_CORS_ORIGINS":   "https://a.example,https://b.example",
		"UNRELATED_VARIABLE_VALUE": "x",
	})
	if err != nil {
		t.Fatalf("ApplyEnvFrom: %v", err)
	}

	if cfg.Ledger != "rpc" || cfg.SignKey != "0xabc" {
		t.Errorf("Ledger/SignKey = %q/%q", cfg.Ledger, cfg.SignKey)
	}
	if cfg.ChallengeTTL != 30*time.Second {
		t.Errorf("ChallengeTTL = %v, want 30s", cfg.ChallengeTTL)
	}
	if cfg.MaxReads != 4 {
		t.Errorf("MaxReads = %d, want 4", cfg.MaxReads)
	}
	if len(cfg.Owners) != 2 || len(cfg.CORSOrigins) != 2 {
		t.Errorf("Owners = %v, CORSOrigins = %v", cfg.Owners, cfg.CORSOrigins)
	}
	// Unset variables keep their previous value.
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":8080")
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("ValidateConfig: %v", err)
	}
}

func TestApplyEnvFrom_BadDuration(t *testing.T) {
	cfg := DefaultConfig()
	err := ApplyEnvFrom(&cfg, map[string]string{"HASHDRIVE_RPC_TIMEOUT": "later"})
	if err == nil {
		t.Fatal("expected error for malformed duration")
	}
}

func TestValidateConfig_Ledger(t *testing.T) {
	rpc := func(c *Config) {
		c.Ledger = "rpc"
		c.Contract = "0x5fbdb2315678afecb367f032d93f642f64180aa3"
	}
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr error
	}{
		{"memory", func(c *Config) {}, nil},
		{"rpc_localhost_preset", rpc, nil},
		{"bad_ledger", func(c *Config) { c.Ledger = "sqlite" }, ErrInvalidLedger},
		{"missing_contract", func(c *Config) { c.Ledger = "rpc" }, ErrInvalidContract},
		{"bad_contract", func(c *Config) { rpc(c); c.Contract = "0x12" }, ErrInvalidContract},
		{"domain_instead_of_contract", func(c *Config) {
			c.Ledger = "rpc"
			c.LedgerDomain = "example.org"
		}, nil},
		{"mainnet_without_url", func(c *Config) { rpc(c); c.Network = "mainnet" }, ErrMissingRPCURL},
		{"mainnet_with_url", func(c *Config) {
			rpc(c)
			c.Network = "mainnet"
			c.RPCURL = "https://eth.example.org"
		}, nil},
		{"bad_url", func(c *Config) { rpc(c); c.RPCURL = "ftp://x" }, ErrMissingRPCURL},
		{"bad_owner", func(c *Config) { c.Owners = []string{"bob"} }, ErrInvalidOwner},
		{"zero_ttl", func(c *Config) { c.ChallengeTTL = 0 }, ErrInvalidValue},
		{"zero_upload", func(c *Config) { c.MaxUploadBytes = 0 }, ErrInvalidValue},
		{"zero_gas_price_cap", func(c *Config) { c.GasPriceCapGwei = 0 }, ErrInvalidValue},
		{"dnssec_resolver", func(c *Config) { c.DNSSECResolver = "9.9.9.9:53" }, nil},
		{"dnssec_resolver_without_port", func(c *Config) { c.DNSSECResolver = "9.9.9.9" }, ErrInvalidValue},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(&cfg)
			err := ValidateConfig(cfg)
			if tc.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateConfig: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("ValidateConfig: got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestOwnerAddresses(t *testing.T) {
	cfg := Config{Owners: []string{"0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf"}}
	owners, err := cfg.OwnerAddresses()
	if err != nil {
		t.Fatal(err)
	}
	if len(owners) != 1 || owners[0].String() != "0x7e5f4552091a69125d5dfcb7b8c2659029395bdf" {
		t.Errorf("OwnerAddresses = %v", owners)
	}
}

func TestDataPaths(t *testing.T) {
	cfg := Config{DataDir: "/srv/hashdrive"}
	if got := cfg.UploadDir(); got != filepath.Join("/srv/hashdrive", "uploads") {
		t.Errorf("UploadDir = %q", got)
	}
	if got := cfg.DBPath(); got != filepath.Join("/srv/hashdrive", "hashdrive.db") {
		t.Errorf("DBPath = %q", got)
	}
}
