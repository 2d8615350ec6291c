package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/hashdriveorg/hashdrive-go/wallet"
)

// validLogLevels lists the accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ValidateConfig checks that all configuration values are within acceptable
// ranges and returns the first error encountered, or nil if valid.
func ValidateConfig(cfg Config) error {
	if cfg.DataDir == "" {
		return ErrEmptyDataDir
	}

	netCfg, err := wallet.GetNetwork(cfg.Network)
	if err != nil {
		return fmt.Errorf("%w: %q (known: %s)", ErrInvalidNetwork, cfg.Network, strings.Join(wallet.NetworkNames(), ", "))
	}

	if err := validateAddr(cfg.ListenAddr); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidListenAddr, err)
	}

	if !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		return ErrInvalidLogLevel
	}

	switch cfg.Ledger {
	case "memory":
	case "rpc":
		if err := validateLedger(cfg, netCfg); err != nil {
			return err
		}
	default:
		return ErrInvalidLedger
	}

	if cfg.DNSSECResolver != "" {
		if err := validateAddr(cfg.DNSSECResolver); err != nil {
			return fmt.Errorf("%w: dnssec_resolver: %w", ErrInvalidValue, err)
		}
	}

	if _, err := cfg.OwnerAddresses(); err != nil {
		return err
	}

	positive := []struct {
		name string
		ok   bool
	}{
		{"rpc_timeout", cfg.RPCTimeout > 0},
		{"confirm_timeout", cfg.ConfirmTimeout > 0},
		{"gas_limit_cap", cfg.GasLimitCap > 0},
		{"gas_price_cap_gwei", cfg.GasPriceCapGwei > 0},
		{"retry_attempts", cfg.RetryAttempts > 0},
		{"max_reads", cfg.MaxReads > 0},
		{"challenge_ttl", cfg.ChallengeTTL > 0},
		{"max_upload_bytes", cfg.MaxUploadBytes > 0},
		{"nonce_rate", cfg.NonceRate > 0},
		{"nonce_burst", cfg.NonceBurst > 0},
		{"orphan_grace", cfg.OrphanGrace > 0},
		{"reconcile_interval", cfg.ReconcileInterval > 0},
	}
	for _, p := range positive {
		if !p.ok {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidValue, p.name)
		}
	}
	return nil
}

// validateLedger checks the contract and endpoint of an rpc ledger. Either
// may be left empty when a ledger domain is set for discovery.
func validateLedger(cfg Config, netCfg *wallet.NetworkConfig) error {
	if cfg.Contract != "" {
		if _, err := wallet.ParseAddress(cfg.Contract); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidContract, err)
		}
	} else if cfg.LedgerDomain == "" {
		return fmt.Errorf("%w: contract or ledger_domain is required", ErrInvalidContract)
	}

	rpcURL := cfg.RPCURL
	if rpcURL == "" {
		rpcURL = netCfg.RPCURL
	}
	if rpcURL == "" {
		if cfg.LedgerDomain == "" {
			return ErrMissingRPCURL
		}
		return nil
	}
	u, err := url.Parse(rpcURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrMissingRPCURL, rpcURL)
	}
	return nil
}

// OwnerAddresses parses Owners.
func (c Config) OwnerAddresses() ([]wallet.Address, error) {
	out := make([]wallet.Address, 0, len(c.Owners))
	for _, o := range c.Owners {
		a, err := wallet.ParseAddress(o)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidOwner, o)
		}
		out = append(out, a)
	}
	return out, nil
}

// validateAddr checks that addr is a valid host:port address.
func validateAddr(addr string) error {
	_, _, err := net.SplitHostPort(addr)
	return err
}
