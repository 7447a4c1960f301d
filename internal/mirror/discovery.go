package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BadgerOps/tuner/internal/safety"
)

// Discovery sources, reported to the observer.
const (
	SourceSRV      = "srv"
	SourceDNS      = "dns"
	SourceFallback = "fallback"
)

const defaultLookupTimeout = 5 * time.Second

// ErrNoFallbackMirrors is returned when discovery is configured without a
// single usable fallback mirror.
var ErrNoFallbackMirrors = errors.New("no usable fallback mirrors configured")

// DiscoveryOptions configures the DNS names discovery queries.
type DiscoveryOptions struct {
	SRVService string
	SRVProto   string
	Domain     string
	LookupHost string
	Fallback   []string
}

// Discovery finds candidate mirror base URLs. Lookups run in priority order
// (SRV, then A records of the catch-all host, then the fallback list) and
// each tier fails soft into the next.
type Discovery struct {
	resolver      Resolver
	logger        *slog.Logger
	observer      Observer
	srvService    string
	srvProto      string
	domain        string
	lookupHost    string
	fallback      []string
	lookupTimeout time.Duration
	shuffle       func([]string)
}

// NewDiscovery creates a Discovery. It fails when none of the fallback
// mirrors is a valid HTTP(S) base URL, so Discover can never come back empty.
func NewDiscovery(resolver Resolver, opts DiscoveryOptions, logger *slog.Logger, observer Observer) (*Discovery, error) {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = NopObserver{}
	}

	var fallback []string
	for _, raw := range opts.Fallback {
		u, err := safety.NormalizeBaseURL(raw)
		if err != nil {
			logger.Warn("ignoring invalid fallback mirror", "mirror", raw, "error", err)
			continue
		}
		fallback = appendUnique(fallback, u)
	}
	if len(fallback) == 0 {
		return nil, ErrNoFallbackMirrors
	}

	return &Discovery{
		resolver:      resolver,
		logger:        logger,
		observer:      observer,
		srvService:    opts.SRVService,
		srvProto:      opts.SRVProto,
		domain:        opts.Domain,
		lookupHost:    opts.LookupHost,
		fallback:      fallback,
		lookupTimeout: defaultLookupTimeout,
		shuffle:       shuffleStrings,
	}, nil
}

// Fallback returns a copy of the hardcoded fallback list in configured order.
func (d *Discovery) Fallback() []string {
	return append([]string(nil), d.fallback...)
}

// Discover returns the candidate mirrors, shuffled. The result is never empty.
func (d *Discovery) Discover(ctx context.Context) []string {
	mirrors, source := d.discover(ctx)
	d.shuffle(mirrors)
	d.observer.Discovered(source, mirrors)
	return mirrors
}

func (d *Discovery) discover(ctx context.Context) ([]string, string) {
	if d.srvService != "" && d.domain != "" {
		mirrors, err := d.fromSRV(ctx)
		if err == nil && len(mirrors) > 0 {
			return mirrors, SourceSRV
		}
		d.logger.Debug("SRV discovery yielded nothing, trying A records", "error", err)
	}

	if d.lookupHost != "" {
		mirrors, err := d.fromLookupHost(ctx)
		if err == nil && len(mirrors) > 0 {
			return mirrors, SourceDNS
		}
		d.logger.Debug("A record discovery yielded nothing, using fallback mirrors", "error", err)
	}

	return d.Fallback(), SourceFallback
}

// fromSRV resolves the SRV records, orders them by priority ascending then
// weight descending, and keeps targets inside the expected domain.
func (d *Discovery) fromSRV(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.lookupTimeout)
	defer cancel()

	_, records, err := d.resolver.LookupSRV(ctx, d.srvService, d.srvProto, d.domain)
	if err != nil {
		return nil, fmt.Errorf("looking up SRV records for %s: %w", d.domain, err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Priority != records[j].Priority {
			return records[i].Priority < records[j].Priority
		}
		return records[i].Weight > records[j].Weight
	})

	var mirrors []string
	for _, rec := range records {
		host := strings.TrimSuffix(rec.Target, ".")
		if !safety.HostInDomain(host, d.domain) {
			d.logger.Debug("skipping SRV target outside domain", "target", host, "domain", d.domain)
			continue
		}
		mirrors = appendUnique(mirrors, httpsBaseURL(host, rec.Port))
	}
	return mirrors, nil
}

// fromLookupHost resolves the catch-all host and turns each address back into
// a hostname where reverse DNS allows, so TLS verification has a name to check.
func (d *Discovery) fromLookupHost(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.lookupTimeout)
	defer cancel()

	ips, err := d.resolver.LookupIP(ctx, "ip4", d.lookupHost)
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", d.lookupHost, err)
	}

	var mirrors []string
	for _, ip := range ips {
		host := ip.String()
		names, err := d.resolver.LookupAddr(ctx, host)
		if err == nil && len(names) > 0 && strings.TrimSuffix(names[0], ".") != "" {
			host = strings.TrimSuffix(names[0], ".")
		} else {
			d.logger.Debug("reverse lookup failed, using raw address", "ip", host, "error", err)
		}
		mirrors = appendUnique(mirrors, httpsBaseURL(host, 0))
	}
	return mirrors, nil
}

func httpsBaseURL(host string, port uint16) string {
	if port == 0 || port == 443 {
		if strings.Contains(host, ":") {
			return "https://[" + host + "]"
		}
		return "https://" + host
	}
	return "https://" + net.JoinHostPort(host, strconv.Itoa(int(port)))
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}

// shuffleStrings is an in-place Fisher-Yates shuffle.
func shuffleStrings(s []string) {
	rand.Shuffle(len(s), func(i, j int) {
		s[i], s[j] = s[j], s[i]
	})
}
