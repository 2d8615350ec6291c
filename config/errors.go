package config

import "errors"

var (
	// ErrInvalidNetwork indicates the network name is not recognized.
	ErrInvalidNetwork = errors.New("config: unknown network")

	// ErrInvalidListenAddr indicates the listen address is malformed.
	ErrInvalidListenAddr = errors.New("config: invalid listen address")

	// ErrInvalidLogLevel indicates the log level is not recognized.
	ErrInvalidLogLevel = errors.New("config: invalid log level (must be \"debug\", \"info\", \"warn\", or \"error\")")

	// ErrEmptyDataDir indicates the data directory path is empty.
	ErrEmptyDataDir = errors.New("config: data directory must not be empty")

	// ErrConfigNotFound indicates the configuration file does not exist.
	ErrConfigNotFound = errors.New("config: configuration file not found")

	// ErrInvalidConfigLine indicates a line in the config file is malformed.
	ErrInvalidConfigLine = errors.New("config: invalid configuration line")

	// ErrInvalidValue indicates a key has a value of the wrong type or range.
	ErrInvalidValue = errors.New("config: invalid value")

	// ErrInvalidLedger indicates the ledger backend is not recognized.
	ErrInvalidLedger = errors.New("config: invalid ledger (must be \"rpc\" or \"memory\")")

	// ErrInvalidContract indicates the registry contract address is missing or malformed.
	ErrInvalidContract = errors.New("config: invalid registry contract address")

	// ErrMissingRPCURL indicates no ledger endpoint is configured or discoverable.
	ErrMissingRPCURL = errors.New("config: ledger rpc url is required")

	// ErrInvalidOwner indicates an owner entry is not a wallet address.
	ErrInvalidOwner = errors.New("config: invalid owner address")
)
