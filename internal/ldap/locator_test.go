package ldap

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSRVResolver struct {
	mock.Mock
}

func (m *MockSRVResolver) LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error) {
	args := m.Called(ctx, service, proto, name)
	records, _ := args.Get(1).([]*net.SRV)
	return args.String(0), records, args.Error(2)
}

func noRealm(string) (string, error) { return "", errors.New("no krb5.conf") }

func TestLocator_ExplicitServer(t *testing.T) {
	resolver := new(MockSRVResolver)
	l := &Locator{resolver: resolver, defaultRealm: noRealm}

	cfg := DefaultConfig()
	cfg.Server = " dc1.example.com "
	cfg.Domain = "example.com"

	info, err := l.Locate(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "dc1.example.com", info.Host)
	assert.Equal(t, "config", info.Source)
	resolver.AssertNotCalled(t, "LookupSRV", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLocator_PDCRecord(t *testing.T) {
	ctx := context.Background()
	resolver := new(MockSRVResolver)
	resolver.On("LookupSRV", ctx, "", "", "_ldap._tcp.pdc._msdcs.example.com").Return("", []*net.SRV{
		{Target: "dc2.example.com.", Port: 389, Priority: 10, Weight: 100},
		{Target: "dc1.example.com.", Port: 389, Priority: 0, Weight: 100},
	}, nil)

	l := &Locator{resolver: resolver, defaultRealm: noRealm}
	cfg := DefaultConfig()
	cfg.Domain = "Example.COM"

	info, err := l.Locate(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, "DC1.EXAMPLE.COM", info.Host)
	assert.Equal(t, "pdc", info.Source)
	resolver.AssertExpectations(t)
}

func TestLocator_FallbackToDomain(t *testing.T) {
	ctx := context.Background()
	resolver := new(MockSRVResolver)
	resolver.On("LookupSRV", ctx, "", "", "_ldap._tcp.pdc._msdcs.example.com").
		Return("", nil, &net.DNSError{Err: "no such host", Name: "example.com", IsNotFound: true})

	l := &Locator{resolver: resolver, defaultRealm: noRealm}
	cfg := DefaultConfig()
	cfg.Domain = "example.com"

	info, err := l.Locate(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, "EXAMPLE.COM", info.Host)
	assert.Equal(t, "fallback", info.Source)
}

func TestLocator_DefaultRealm(t *testing.T) {
	ctx := context.Background()
	resolver := new(MockSRVResolver)
	resolver.On("LookupSRV", ctx, "", "", "_ldap._tcp.pdc._msdcs.corp.example").Return("", []*net.SRV{}, nil)

	l := &Locator{resolver: resolver, defaultRealm: func(string) (string, error) { return "CORP.EXAMPLE", nil }}

	info, err := l.Locate(ctx, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "CORP.EXAMPLE", info.Host)
	assert.Equal(t, "fallback", info.Source)
}

func TestLocator_NoDomain(t *testing.T) {
	l := &Locator{resolver: new(MockSRVResolver), defaultRealm: noRealm}

	_, err := l.Locate(context.Background(), DefaultConfig())
	assert.Error(t, err)

	_, err = l.Locate(context.Background(), nil)
	assert.Error(t, err)
}

// recordingBinder scripts bind outcomes per transport.
type recordingBinder struct {
	mu       sync.Mutex
	outcomes map[Transport]error
	panics   map[Transport]bool
	attempts []Transport
	closed   int
}

func (b *recordingBinder) bind(ctx context.Context, cfg *ConnectionConfig, server string, transport Transport) (func(), error) {
	b.mu.Lock()
	b.attempts = append(b.attempts, transport)
	b.mu.Unlock()

	if b.panics[transport] {
		panic("boom")
	}
	if err := b.outcomes[transport]; err != nil {
		return nil, err
	}
	return func() {
		b.mu.Lock()
		b.closed++
		b.mu.Unlock()
	}, nil
}

func TestProbe(t *testing.T) {
	refused := NewConnectionError("connection refused", true, nil)

	tests := []struct {
		name         string
		outcomes     map[Transport]error
		panics       map[Transport]bool
		want         Transport
		wantAttempts []Transport
		wantClosed   int
	}{
		{
			name:         "secure succeeds",
			outcomes:     map[Transport]error{},
			want:         TransportSecure,
			wantAttempts: []Transport{TransportSecure},
			wantClosed:   1,
		},
		{
			name:         "insecure fallback",
			outcomes:     map[Transport]error{TransportSecure: refused},
			want:         TransportInsecure,
			wantAttempts: []Transport{TransportSecure, TransportInsecure},
			wantClosed:   1,
		},
		{
			name:         "nothing reachable",
			outcomes:     map[Transport]error{TransportSecure: refused, TransportInsecure: refused},
			want:         TransportNone,
			wantAttempts: []Transport{TransportSecure, TransportInsecure},
		},
		{
			name:         "panic is contained",
			outcomes:     map[Transport]error{TransportInsecure: refused},
			panics:       map[Transport]bool{TransportSecure: true},
			want:         TransportNone,
			wantAttempts: []Transport{TransportSecure, TransportInsecure},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &recordingBinder{outcomes: tt.outcomes, panics: tt.panics}
			p := &Prober{bind: b.bind}

			got := p.Probe(context.Background(), DefaultConfig(), "dc1.example.com")
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantAttempts, b.attempts)
			assert.Equal(t, tt.wantClosed, b.closed)
		})
	}
}

func TestProbe_CancelledContext(t *testing.T) {
	b := &recordingBinder{outcomes: map[Transport]error{}}
	p := &Prober{bind: b.bind}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, TransportNone, p.Probe(ctx, DefaultConfig(), "dc1"))
	assert.Empty(t, b.attempts)
}

func TestBuildServicePrincipal(t *testing.T) {
	cfg := DefaultConfig()

	spn, err := buildServicePrincipal(cfg, "DC1.Example.com:389")
	require.NoError(t, err)
	assert.Equal(t, "ldap/dc1.example.com", spn)

	_, err = buildServicePrincipal(cfg, "")
	assert.Error(t, err)

	cfg.KerberosSPN = "ldap/override.example.com"
	spn, err = buildServicePrincipal(cfg, "dc1")
	require.NoError(t, err)
	assert.Equal(t, "ldap/override.example.com", spn)
}

func TestSplitPrincipal(t *testing.T) {
	user, realm := splitPrincipal("svc@example.com", "")
	assert.Equal(t, "svc", user)
	assert.Equal(t, "EXAMPLE.COM", realm)

	user, realm = splitPrincipal("svc@example.com", "corp.example")
	assert.Equal(t, "svc", user)
	assert.Equal(t, "CORP.EXAMPLE", realm)

	user, realm = splitPrincipal("", "")
	assert.Equal(t, "", user)
	assert.Equal(t, "", realm)
}
