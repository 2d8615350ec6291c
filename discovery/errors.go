package discovery

import "errors"

var (
	// ErrLookupFailed indicates a DNS query failed or returned no usable records.
	ErrLookupFailed = errors.New("discovery: DNS lookup failed")

	// ErrDNSSECValidationFailed indicates the upstream resolver did not
	// authenticate the response.
	ErrDNSSECValidationFailed = errors.New("discovery: DNSSEC validation failed")

	// ErrNoEndpoints indicates the domain publishes no ledger RPC endpoint.
	ErrNoEndpoints = errors.New("discovery: no rpc endpoints")

	// ErrNoRegistry indicates the domain publishes no registry= TXT record.
	ErrNoRegistry = errors.New("discovery: no registry record")

	// ErrInvalidDomain indicates an empty or malformed domain name.
	ErrInvalidDomain = errors.New("discovery: invalid domain")
)
