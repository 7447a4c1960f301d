package mirror

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// Resolver is the subset of DNS lookups discovery needs. *net.Resolver
// satisfies it.
type Resolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

var _ Resolver = (*net.Resolver)(nil)
var _ Resolver = (*DNSResolver)(nil)

// DNSResolver sends queries straight to one nameserver instead of going
// through the system resolver configuration.
type DNSResolver struct {
	server string
	client *dns.Client
}

// NewDNSResolver creates a resolver for server ("host" or "host:port",
// port 53 when omitted).
func NewDNSResolver(server string, timeout time.Duration) *DNSResolver {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DNSResolver{
		server: server,
		client: &dns.Client{Net: "udp", Timeout: timeout},
	}
}

// Server returns the nameserver address queries are sent to.
func (r *DNSResolver) Server() string {
	return r.server
}

// LookupSRV queries _service._proto.name. Records are returned in answer
// order; callers sort them.
func (r *DNSResolver) LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error) {
	target := name
	if service != "" || proto != "" {
		target = fmt.Sprintf("_%s._%s.%s", service, proto, name)
	}

	answer, err := r.exchange(ctx, target, dns.TypeSRV)
	if err != nil {
		return "", nil, err
	}

	cname := dns.Fqdn(target)
	var addrs []*net.SRV
	for _, rr := range answer {
		switch v := rr.(type) {
		case *dns.SRV:
			addrs = append(addrs, &net.SRV{
				Target:   v.Target,
				Port:     v.Port,
				Priority: v.Priority,
				Weight:   v.Weight,
			})
		case *dns.CNAME:
			cname = v.Target
		}
	}
	return cname, addrs, nil
}

// LookupIP returns the A records for host. Only "ip4" and "ip" are served.
func (r *DNSResolver) LookupIP(ctx context.Context, network, host string) ([]net.IP, error) {
	if network != "ip4" && network != "ip" {
		return nil, fmt.Errorf("unsupported network %q", network)
	}

	answer, err := r.exchange(ctx, host, dns.TypeA)
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, rr := range answer {
		if a, ok := rr.(*dns.A); ok {
			ips = append(ips, a.A)
		}
	}
	return ips, nil
}

// LookupAddr performs a PTR lookup for addr.
func (r *DNSResolver) LookupAddr(ctx context.Context, addr string) ([]string, error) {
	arpa, err := dns.ReverseAddr(addr)
	if err != nil {
		return nil, fmt.Errorf("building reverse name for %s: %w", addr, err)
	}

	answer, err := r.exchange(ctx, arpa, dns.TypePTR)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, rr := range answer {
		if p, ok := rr.(*dns.PTR); ok {
			names = append(names, p.Ptr)
		}
	}
	return names, nil
}

func (r *DNSResolver) exchange(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return nil, fmt.Errorf("querying %s for %s %s: %w", r.server, dns.TypeToString[qtype], name, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("%s lookup of %s failed: %s", dns.TypeToString[qtype], name, dns.RcodeToString[resp.Rcode])
	}
	return resp.Answer, nil
}
