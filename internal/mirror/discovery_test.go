package mirror

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFallback = []string{
	"https://de1.api.radio-browser.info",
	"https://nl1.api.radio-browser.info/",
	"https://at1.api.radio-browser.info",
}

func newTestDiscovery(t *testing.T, r Resolver, obs Observer) *Discovery {
	t.Helper()
	d, err := NewDiscovery(r, DiscoveryOptions{
		SRVService: "api",
		SRVProto:   "tcp",
		Domain:     "radio-browser.info",
		LookupHost: "all.api.radio-browser.info",
		Fallback:   testFallback,
	}, discardLogger(), obs)
	require.NoError(t, err)
	// keep tier ordering observable
	d.shuffle = func([]string) {}
	return d
}

func TestDiscoverySRVOrderingAndDomainFilter(t *testing.T) {
	r := &fakeResolver{srv: []*net.SRV{
		{Target: "de2.api.radio-browser.info.", Port: 443, Priority: 2, Weight: 10},
		{Target: "nl1.api.radio-browser.info.", Port: 443, Priority: 1, Weight: 5},
		{Target: "at1.api.radio-browser.info.", Port: 443, Priority: 1, Weight: 20},
		{Target: "mirror.evil.example.com.", Port: 443, Priority: 0, Weight: 100},
		{Target: "fi1.api.radio-browser.info.", Port: 8443, Priority: 3, Weight: 1},
	}}
	obs := &recordingObserver{}
	d := newTestDiscovery(t, r, obs)

	got := d.Discover(context.Background())

	assert.Equal(t, []string{
		"https://at1.api.radio-browser.info",
		"https://nl1.api.radio-browser.info",
		"https://de2.api.radio-browser.info",
		"https://fi1.api.radio-browser.info:8443",
	}, got)
	assert.Equal(t, []string{SourceSRV}, obs.sources)
}

func TestDiscoveryFallsThroughToARecords(t *testing.T) {
	r := &fakeResolver{
		srvErr: &net.DNSError{Err: "no such host", Name: "_api._tcp.radio-browser.info"},
		ips:    []net.IP{net.ParseIP("91.132.145.114"), net.ParseIP("45.77.62.161")},
		names: map[string][]string{
			"91.132.145.114": {"de1.api.radio-browser.info."},
		},
	}
	obs := &recordingObserver{}
	d := newTestDiscovery(t, r, obs)

	got := d.Discover(context.Background())

	assert.Equal(t, []string{
		"https://de1.api.radio-browser.info",
		"https://45.77.62.161",
	}, got)
	assert.Equal(t, []string{SourceDNS}, obs.sources)
}

func TestDiscoverySRVOutsideDomainFallsThrough(t *testing.T) {
	r := &fakeResolver{
		srv: []*net.SRV{{Target: "radio.example.org.", Port: 443}},
		ips: []net.IP{net.ParseIP("10.0.0.1")},
	}
	d := newTestDiscovery(t, r, nil)

	assert.Equal(t, []string{"https://10.0.0.1"}, d.Discover(context.Background()))
}

func TestDiscoveryUsesFallbackWhenDNSFails(t *testing.T) {
	r := &fakeResolver{
		srvErr: errors.New("servfail"),
		ipErr:  errors.New("servfail"),
	}
	obs := &recordingObserver{}
	d := newTestDiscovery(t, r, obs)

	got := d.Discover(context.Background())

	assert.Equal(t, []string{
		"https://de1.api.radio-browser.info",
		"https://nl1.api.radio-browser.info",
		"https://at1.api.radio-browser.info",
	}, got)
	assert.Equal(t, []string{SourceFallback}, obs.sources)

	// callers must not be able to corrupt the fallback list
	got[0] = "https://mutated.example"
	assert.Equal(t, "https://de1.api.radio-browser.info", d.Fallback()[0])
}

func TestDiscoveryNeverEmpty(t *testing.T) {
	dnsErr := errors.New("lookup failed")
	resolvers := map[string]*fakeResolver{
		"all errors":      {srvErr: dnsErr, ipErr: dnsErr},
		"empty answers":   {},
		"srv error only":  {srvErr: dnsErr},
		"a error only":    {ipErr: dnsErr},
		"foreign targets": {srv: []*net.SRV{{Target: "x.example."}}, ipErr: dnsErr},
	}

	for name, r := range resolvers {
		t.Run(name, func(t *testing.T) {
			d, err := NewDiscovery(r, DiscoveryOptions{
				SRVService: "api", SRVProto: "tcp",
				Domain: "radio-browser.info", LookupHost: "all.api.radio-browser.info",
				Fallback: testFallback,
			}, discardLogger(), nil)
			require.NoError(t, err)

			for i := 0; i < 20; i++ {
				assert.NotEmpty(t, d.Discover(context.Background()))
			}
		})
	}
}

func TestDiscoveryShufflesResult(t *testing.T) {
	d := newTestDiscovery(t, &fakeResolver{srvErr: errors.New("x"), ipErr: errors.New("x")}, nil)

	var shuffled []string
	d.shuffle = func(s []string) {
		s[0], s[len(s)-1] = s[len(s)-1], s[0]
		shuffled = append([]string(nil), s...)
	}

	got := d.Discover(context.Background())
	assert.Equal(t, shuffled, got)
	assert.Equal(t, "https://at1.api.radio-browser.info", got[0])
}

func TestShuffleStringsIsPermutation(t *testing.T) {
	in := []string{"a", "b", "c", "d", "e"}
	s := append([]string(nil), in...)
	shuffleStrings(s)
	assert.ElementsMatch(t, in, s)
}

func TestNewDiscoveryRejectsUnusableFallback(t *testing.T) {
	_, err := NewDiscovery(&fakeResolver{}, DiscoveryOptions{
		Fallback: []string{"ftp://old.example", "not a url"},
	}, discardLogger(), nil)
	assert.ErrorIs(t, err, ErrNoFallbackMirrors)

	_, err = NewDiscovery(&fakeResolver{}, DiscoveryOptions{}, discardLogger(), nil)
	assert.ErrorIs(t, err, ErrNoFallbackMirrors)
}

func TestHTTPSBaseURL(t *testing.T) {
	assert.Equal(t, "https://de1.api.radio-browser.info", httpsBaseURL("de1.api.radio-browser.info", 443))
	assert.Equal(t, "https://de1.api.radio-browser.info", httpsBaseURL("de1.api.radio-browser.info", 0))
	assert.Equal(t, "https://de1.api.radio-browser.info:8443", httpsBaseURL("de1.api.radio-browser.info", 8443))
	assert.Equal(t, "https://[2001:db8::1]", httpsBaseURL("2001:db8::1", 0))
}
