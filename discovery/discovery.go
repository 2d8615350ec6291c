// Package discovery locates a FileRegistry deployment through DNS. A domain
// publishes its ledger node as an SRV record at _ethrpc._tcp.<domain> and
// the registry contract as a TXT record "registry=0x..." at
// _hashdrive.<domain>.
package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/miekg/dns"

	"github.com/hashdriveorg/hashdrive-go/wallet"
)

// Record names.
const (
	SRVService   = "ethrpc"     // _ethrpc._tcp.{domain}
	TXTLabel     = "_hashdrive" // _hashdrive.{domain}
	registryAttr = "registry="
)

// Resolver defines the DNS lookups discovery needs. Tests substitute a fake.
type Resolver interface {
	// LookupSRV looks up SRV records for the given service, proto, and name.
	LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)

	// LookupTXT looks up TXT records for the given name.
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// SystemResolver uses the operating system resolver.
var SystemResolver Resolver = net.DefaultResolver

// Ledger is the discovered location of a registry deployment.
type Ledger struct {
	RPCURL   string
	Contract wallet.Address
}

// Discoverer is a Resolver that can locate a whole deployment itself.
type Discoverer interface {
	Discover(ctx context.Context, domain string) (Ledger, error)
}

// Discover resolves both the RPC endpoint and the registry contract of
// domain.
func Discover(ctx context.Context, r Resolver, domain string) (Ledger, error) {
	if d, ok := r.(Discoverer); ok {
		return d.Discover(ctx, domain)
	}
	endpoint, err := LookupRPCEndpoint(ctx, r, domain)
	if err != nil {
		return Ledger{}, err
	}
	contract, err := LookupRegistry(ctx, r, domain)
	if err != nil {
		return Ledger{}, err
	}
	return Ledger{RPCURL: endpoint, Contract: contract}, nil
}

// Endpoints returns the ledger RPC endpoints of domain as host:port,
// sorted by priority then weight.
func Endpoints(ctx context.Context, r Resolver, domain string) ([]string, error) {
	if err := checkDomain(domain); err != nil {
		return nil, err
	}

	_, addrs, err := r.LookupSRV(ctx, SRVService, "tcp", domain)
	if err != nil {
		return nil, fmt.Errorf("%w: SRV lookup for _%s._tcp.%s: %w", ErrLookupFailed, SRVService, domain, err)
	}
	return sortEndpoints(domain, addrs)
}

// sortEndpoints orders SRV targets and renders them as host:port.
func sortEndpoints(domain string, addrs []*net.SRV) ([]string, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: no SRV records for _%s._tcp.%s", ErrNoEndpoints, SRVService, domain)
	}

	// Sort by priority (ascending), then by weight (descending)
	sort.SliceStable(addrs, func(i, j int) bool {
		if addrs[i].Priority != addrs[j].Priority {
			return addrs[i].Priority < addrs[j].Priority
		}
		return addrs[i].Weight > addrs[j].Weight
	})

	endpoints := make([]string, 0, len(addrs))
	for _, srv := range addrs {
		host := strings.TrimSuffix(srv.Target, ".")
		if host == "" {
			continue
		}
		endpoints = append(endpoints, net.JoinHostPort(host, strconv.Itoa(int(srv.Port))))
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("%w: empty SRV targets for _%s._tcp.%s", ErrNoEndpoints, SRVService, domain)
	}
	return endpoints, nil
}

// LookupRPCEndpoint returns the URL of the preferred ledger node of domain.
// Port 80 maps to http, any other port to https.
func LookupRPCEndpoint(ctx context.Context, r Resolver, domain string) (string, error) {
	endpoints, err := Endpoints(ctx, r, domain)
	if err != nil {
		return "", err
	}
	return endpointURL(endpoints[0]), nil
}

func endpointURL(hostport string) string {
	host, port, _ := net.SplitHostPort(hostport)
	switch port {
	case "80":
		return "http://" + host
	case "443":
		return "https://" + host
	default:
		return "https://" + hostport
	}
}

// LookupRegistry returns the registry contract address published in the
// _hashdrive.<domain> TXT record.
func LookupRegistry(ctx context.Context, r Resolver, domain string) (wallet.Address, error) {
	if err := checkDomain(domain); err != nil {
		return wallet.Address{}, err
	}

	name := TXTLabel + "." + domain
	txts, err := r.LookupTXT(ctx, name)
	if err != nil {
		return wallet.Address{}, fmt.Errorf("%w: TXT lookup for %s: %w", ErrLookupFailed, name, err)
	}
	return parseRegistry(name, txts)
}

// parseRegistry picks the first registry= attribute out of the TXT strings
// published at name.
func parseRegistry(name string, txts []string) (wallet.Address, error) {
	for _, txt := range txts {
		txt = strings.TrimSpace(txt)
		if !strings.HasPrefix(txt, registryAttr) {
			continue
		}
		addr, err := wallet.ParseAddress(strings.TrimSpace(strings.TrimPrefix(txt, registryAttr)))
		if err != nil {
			return wallet.Address{}, fmt.Errorf("%w: %s: %w", ErrNoRegistry, name, err)
		}
		return addr, nil
	}
	return wallet.Address{}, fmt.Errorf("%w: no %s TXT record for %s", ErrNoRegistry, registryAttr, name)
}

func checkDomain(domain string) error {
	if domain == "" {
		return fmt.Errorf("%w: empty domain", ErrInvalidDomain)
	}
	if _, ok := dns.IsDomainName(domain); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}
	return nil
}
