package ldap

import (
	"context"
	"time"
)

// binder opens and authenticates a connection, returning a func that closes it.
type binder func(ctx context.Context, cfg *ConnectionConfig, server string, transport Transport) (func(), error)

func defaultBinder(ctx context.Context, cfg *ConnectionConfig, server string, transport Transport) (func(), error) {
	conn, err := dialAndBind(ctx, cfg, server, transport)
	if err != nil {
		return nil, err
	}
	return func() { conn.Close() }, nil
}

// Prober decides which transport reaches a server.
type Prober struct {
	bind binder
}

// NewProber creates a prober that performs real dials and binds.
func NewProber() *Prober {
	return &Prober{bind: defaultBinder}
}

// Probe tries a secure bind, then an insecure one, and reports the first
// that succeeds. It never returns an error; TransportNone means neither
// worked. Every probe connection is closed before returning.
func Probe(ctx context.Context, cfg *ConnectionConfig, server string) Transport {
	return NewProber().Probe(ctx, cfg, server)
}

// Probe is the method form of the package-level Probe.
func (p *Prober) Probe(ctx context.Context, cfg *ConnectionConfig, server string) Transport {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	for _, transport := range []Transport{TransportSecure, TransportInsecure} {
		if ctx.Err() != nil {
			return TransportNone
		}
		if p.try(ctx, cfg, server, transport) {
			return transport
		}
	}

	LogConnectionEvent(ctx, "connection_failed", map[string]any{
		"server": server,
		"reason": "no transport could bind",
	})
	return TransportNone
}

func (p *Prober) try(ctx context.Context, cfg *ConnectionConfig, server string, transport Transport) (ok bool) {
	start := time.Now()
	fields := map[string]any{
		"server":    server,
		"transport": transport.String(),
		"port":      transport.Port(cfg),
	}

	defer func() {
		if r := recover(); r != nil {
			fields["panic"] = r
			ok = false
		}
		fields["duration_ms"] = time.Since(start).Milliseconds()
		if ok {
			LogConnectionEvent(ctx, "probe_succeeded", fields)
		} else {
			LogConnectionEvent(ctx, "probe_failed", fields)
		}
	}()

	probeCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	closeConn, err := p.bind(probeCtx, cfg, server, transport)
	if err != nil {
		fields["error"] = err.Error()
		return false
	}
	closeConn()
	return true
}
