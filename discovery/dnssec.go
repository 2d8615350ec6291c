package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"
)

const (
	defaultUpstream = "8.8.8.8:53"
	dnssecTimeout   = 10 * time.Second
	edns0BufSize    = 4096
)

// DNSSECResolver locates ledgers through a validating recursive resolver.
// Every answer must carry the AD (Authenticated Data) flag, so a spoofed
// SRV or registry= record cannot redirect uploads to another contract.
type DNSSECResolver struct {
	// Upstream is a validating recursive resolver, host:port.
	Upstream string
	Timeout  time.Duration
}

var _ Discoverer = (*DNSSECResolver)(nil)

// NewDNSSECResolver returns a resolver querying upstream, or 8.8.8.8:53
// when upstream is empty.
func NewDNSSECResolver(upstream string) *DNSSECResolver {
	if upstream == "" {
		upstream = defaultUpstream
	}
	return &DNSSECResolver{Upstream: upstream, Timeout: dnssecTimeout}
}

// Discover looks up the node SRV records and the registry TXT record of
// domain in parallel.
func (r *DNSSECResolver) Discover(ctx context.Context, domain string) (Ledger, error) {
	if err := checkDomain(domain); err != nil {
		return Ledger{}, err
	}

	var (
		srvs []*net.SRV
		txts []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		_, srvs, err = r.LookupSRV(gctx, SRVService, "tcp", domain)
		return err
	})
	g.Go(func() error {
		var err error
		txts, err = r.LookupTXT(gctx, TXTLabel+"."+domain)
		return err
	})
	if err := g.Wait(); err != nil {
		return Ledger{}, fmt.Errorf("%w: %s: %w", ErrLookupFailed, domain, err)
	}

	endpoints, err := sortEndpoints(domain, srvs)
	if err != nil {
		return Ledger{}, err
	}
	contract, err := parseRegistry(TXTLabel+"."+domain, txts)
	if err != nil {
		return Ledger{}, err
	}
	return Ledger{RPCURL: endpointURL(endpoints[0]), Contract: contract}, nil
}

// query sends name with the DO bit set and returns the authenticated
// answer records owned by name. NXDOMAIN yields no records.
func (r *DNSSECResolver) query(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	fqdn := dns.Fqdn(name)
	msg := new(dns.Msg)
	msg.SetQuestion(fqdn, qtype)
	msg.RecursionDesired = true
	msg.SetEdns0(edns0BufSize, true)

	client := &dns.Client{Timeout: r.Timeout}
	resp, _, err := client.ExchangeContext(ctx, msg, r.Upstream)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrLookupFailed, dns.TypeToString[qtype], name, err)
	}
	if resp.Rcode != dns.RcodeSuccess && resp.Rcode != dns.RcodeNameError {
		return nil, fmt.Errorf("%w: %s %s: rcode %s",
			ErrLookupFailed, dns.TypeToString[qtype], name, dns.RcodeToString[resp.Rcode])
	}
	if !resp.AuthenticatedData {
		return nil, fmt.Errorf("%w: %s %s is not authenticated",
			ErrDNSSECValidationFailed, dns.TypeToString[qtype], name)
	}

	var answers []dns.RR
	for _, rr := range resp.Answer {
		if rr.Header().Rrtype == qtype && dns.CanonicalName(rr.Header().Name) == dns.CanonicalName(fqdn) {
			answers = append(answers, rr)
		}
	}
	return answers, nil
}

// LookupSRV returns the authenticated SRV records of _service._proto.name.
// The cname result is always empty.
func (r *DNSSECResolver) LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error) {
	qname := fmt.Sprintf("_%s._%s.%s", service, proto, name)
	answers, err := r.query(ctx, qname, dns.TypeSRV)
	if err != nil {
		return "", nil, err
	}

	srvs := make([]*net.SRV, 0, len(answers))
	for _, rr := range answers {
		srv := rr.(*dns.SRV)
		srvs = append(srvs, &net.SRV{
			Target:   strings.TrimSuffix(srv.Target, "."),
			Port:     srv.Port,
			Priority: srv.Priority,
			Weight:   srv.Weight,
		})
	}
	if len(srvs) == 0 {
		return "", nil, fmt.Errorf("%w: no SRV records for %s", ErrNoEndpoints, qname)
	}
	return "", srvs, nil
}

// LookupTXT returns the authenticated TXT strings of name. A registry=
// value longer than 255 bytes arrives split, so each record's chunks are
// joined.
func (r *DNSSECResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	answers, err := r.query(ctx, name, dns.TypeTXT)
	if err != nil {
		return nil, err
	}

	txts := make([]string, 0, len(answers))
	for _, rr := range answers {
		txts = append(txts, strings.Join(rr.(*dns.TXT).Txt, ""))
	}
	if len(txts) == 0 {
		return nil, fmt.Errorf("%w: no TXT records for %s", ErrNoRegistry, name)
	}
	return txts, nil
}
