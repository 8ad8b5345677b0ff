package ldap

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// searcher is the query half of *ldap.Conn.
type searcher interface {
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
}

// Session is a bound directory connection with its resolved naming contexts.
// Its fields are fixed once Open returns; Search may be called from any
// goroutine but only one query is in flight at a time.
type Session struct {
	mu     sync.Mutex
	conn   searcher
	closer func()
	closed bool

	server         string
	transport      Transport
	baseDN         string
	configDN       string
	requestTimeout time.Duration
}

var _ Directory = (*Session)(nil)

// Open dials server over transport, binds, and reads the root DSE.
func Open(ctx context.Context, cfg *ConnectionConfig, server string, transport Transport) (*Session, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	fields := map[string]any{
		"server":    server,
		"transport": transport.String(),
		"auth":      cfg.GetAuthMethod().String(),
	}

	var session *Session
	err := LogOperation(ctx, Subsystem, "open_session", fields, func() error {
		conn, err := dialAndBind(ctx, cfg, server, transport)
		if err != nil {
			return err
		}

		conn.SetTimeout(cfg.RequestTimeout)

		s, err := newSession(ctx, conn, func() { conn.Close() }, server, transport, cfg.RequestTimeout)
		if err != nil {
			conn.Close()
			return err
		}

		session = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	LogConnectionEvent(ctx, "connection_established", map[string]any{
		"server":           server,
		"transport":        transport.String(),
		"base_dn":          session.baseDN,
		"configuration_dn": session.configDN,
	})

	return session, nil
}

// newSession resolves the naming contexts on an already bound connection.
func newSession(ctx context.Context, conn searcher, closer func(), server string, transport Transport, requestTimeout time.Duration) (*Session, error) {
	baseDN, configDN, err := readNamingContexts(ctx, conn, requestTimeout)
	if err != nil {
		return nil, err
	}

	return &Session{
		conn:           conn,
		closer:         closer,
		server:         server,
		transport:      transport,
		baseDN:         baseDN,
		configDN:       configDN,
		requestTimeout: requestTimeout,
	}, nil
}

func readNamingContexts(ctx context.Context, conn searcher, requestTimeout time.Duration) (string, string, error) {
	req := ldap.NewSearchRequest(
		"",
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		1,
		int(requestTimeout.Seconds()),
		false,
		"(objectClass=*)",
		[]string{"defaultNamingContext", "configurationNamingContext"},
		nil,
	)

	result, err := conn.Search(req)
	if err != nil {
		LogLDAPError(ctx, Subsystem, "read_root_dse", err, nil)
		return "", "", NewConnectionError("failed to read root DSE", false, err)
	}

	if len(result.Entries) == 0 {
		return "", "", NewConnectionError("root DSE returned no entry", false, nil)
	}

	entry := result.Entries[0]
	baseDN, _ := attributeValue(entry, "defaultNamingContext")
	if strings.TrimSpace(baseDN) == "" {
		return "", "", NewConnectionError("no defaultNamingContext found in root DSE", false, nil)
	}
	configDN, _ := attributeValue(entry, "configurationNamingContext")

	return strings.TrimSpace(baseDN), strings.TrimSpace(configDN), nil
}

// BaseDN returns the default naming context.
func (s *Session) BaseDN() string { return s.baseDN }

// ConfigurationDN returns the configuration naming context, if published.
func (s *Session) ConfigurationDN() string { return s.configDN }

// Transport returns the transport the session was opened over.
func (s *Session) Transport() Transport { return s.transport }

// Server returns the host the session is connected to.
func (s *Session) Server() string { return s.server }

// Search runs req on the session. A done ctx is reported before the query is
// issued; a query already on the wire is allowed to finish.
func (s *Session) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req == nil {
		return nil, fmt.Errorf("search request cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed {
		return nil, NewConnectionError("session is closed", false, nil)
	}

	timeLimit := req.TimeLimit
	if timeLimit <= 0 {
		timeLimit = s.requestTimeout
	}

	ldapReq := ldap.NewSearchRequest(
		req.BaseDN,
		int(req.Scope),
		int(req.DerefAliases),
		req.SizeLimit,
		int(timeLimit.Seconds()),
		false,
		req.Filter,
		req.Attributes,
		nil,
	)

	start := time.Now()
	result, err := s.conn.Search(ldapReq)
	if err != nil {
		// A size-limited search that matched more than the limit still
		// carries the entries that fit.
		if !(ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) && result != nil && len(result.Entries) > 0) {
			LogLDAPError(ctx, Subsystem, "search", err, map[string]any{
				"base_dn": req.BaseDN,
				"scope":   req.Scope.String(),
				"filter":  req.Filter,
			})
			return nil, err
		}
	}

	LogQueryPerformance(ctx, req.Filter, time.Since(start), len(result.Entries))

	return &SearchResult{
		Entries: result.Entries,
		Total:   len(result.Entries),
	}, nil
}

// Close releases the connection. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	if s.closer != nil {
		s.closer()
	}
}

// dialAndBind connects to server over transport and authenticates. The
// returned connection is bound; the caller owns it.
func dialAndBind(ctx context.Context, cfg *ConnectionConfig, server string, transport Transport) (*ldap.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if server == "" {
		return nil, NewConnectionError("no directory server to connect to", false, nil)
	}
	if transport == TransportNone {
		return nil, NewConnectionError("no transport selected", false, nil)
	}

	tlsConfig, err := tlsConfigFor(cfg, server)
	if err != nil {
		return nil, NewConnectionError("invalid TLS configuration", false, err)
	}

	conn, encrypted, err := dial(ctx, cfg, server, transport, tlsConfig)
	if err != nil {
		return nil, err
	}

	conn.SetTimeout(cfg.Timeout)

	LogConnectionEvent(ctx, "authentication_attempt", map[string]any{
		"server":    server,
		"auth":      cfg.GetAuthMethod().String(),
		"encrypted": encrypted,
	})

	switch cfg.GetAuthMethod() {
	case AuthMethodSimpleBind:
		if !encrypted && !cfg.DisableStartTLS {
			conn.Close()
			return nil, NewConnectionError(fmt.Sprintf(
				"refusing simple bind to %s over an unencrypted connection; "+
					"the server refused StartTLS (set disable_start_tls to allow plaintext binds)", server), false, nil)
		}
		err = conn.Bind(cfg.Username, cfg.Password)
	default:
		if !encrypted {
			LogConnectionEvent(ctx, "kerberos_without_tls", map[string]any{
				"server": server,
				"note":   "GSSAPI bind proceeds without a TLS or SASL security layer",
			})
		}
		err = kerberosBind(ctx, conn, cfg, server)
	}
	if err != nil {
		conn.Close()
		LogConnectionEvent(ctx, "authentication_failed", map[string]any{
			"server": server,
			"error":  err.Error(),
		})
		return nil, NewConnectionError(fmt.Sprintf("bind to %s failed", server), false, err)
	}

	LogConnectionEvent(ctx, "authentication_success", map[string]any{"server": server})
	return conn, nil
}

// dial connects to server and reports whether the stream is encrypted. On the
// insecure transport the connection is upgraded with StartTLS; only an explicit
// refusal by the server falls back to plaintext. Any other failure, including
// a dropped connection or a rejected certificate, is returned as an error.
func dial(ctx context.Context, cfg *ConnectionConfig, server string, transport Transport, tlsConfig *tls.Config) (*ldap.Conn, bool, error) {
	dialer := &net.Dialer{Timeout: cfg.Timeout}
	hostPort := net.JoinHostPort(server, strconv.Itoa(transport.Port(cfg)))

	if transport == TransportSecure {
		url := "ldaps://" + hostPort
		conn, err := ldap.DialURL(url, ldap.DialWithDialer(dialer), ldap.DialWithTLSConfig(tlsConfig))
		if err != nil {
			return nil, false, NewConnectionError("failed to connect to "+url, true, err)
		}
		return conn, true, nil
	}

	url := "ldap://" + hostPort
	conn, err := ldap.DialURL(url, ldap.DialWithDialer(dialer))
	if err != nil {
		return nil, false, NewConnectionError("failed to connect to "+url, true, err)
	}

	if cfg.DisableStartTLS {
		return conn, false, nil
	}

	conn.SetTimeout(cfg.Timeout)
	err = conn.StartTLS(tlsConfig)
	if err == nil {
		return conn, true, nil
	}
	conn.Close()

	if !startTLSRefused(err) {
		LogConnectionEvent(ctx, "starttls_failed", map[string]any{
			"server": server,
			"error":  err.Error(),
		})
		return nil, false, NewConnectionError("StartTLS to "+url+" failed", false, err)
	}

	// The refused exchange leaves the stream in an unknown state.
	LogConnectionEvent(ctx, "starttls_refused", map[string]any{
		"server": server,
		"error":  err.Error(),
	})
	conn, err = ldap.DialURL(url, ldap.DialWithDialer(dialer))
	if err != nil {
		return nil, false, NewConnectionError("failed to connect to "+url, true, err)
	}
	return conn, false, nil
}

// startTLSRefused reports whether err is the server declining the StartTLS
// extended operation with an LDAP result code. Client-side codes (network,
// handshake, certificate) are not refusals.
func startTLSRefused(err error) bool {
	var resultErr *ldap.Error
	if !errors.As(err, &resultErr) {
		return false
	}
	return resultErr.ResultCode != ldap.LDAPResultSuccess && resultErr.ResultCode < ldap.LDAPResultServerDown
}

// tlsConfigFor returns a TLS configuration bound to host, honouring a
// configured CA bundle.
func tlsConfigFor(cfg *ConnectionConfig, host string) (*tls.Config, error) {
	var tlsConfig *tls.Config
	if cfg.TLSConfig != nil {
		tlsConfig = cfg.TLSConfig.Clone()
	} else {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if tlsConfig.ServerName == "" {
		tlsConfig.ServerName = host
	}

	if cfg.TLSCACertFile != "" {
		pem, err := os.ReadFile(cfg.TLSCACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.TLSCACertFile)
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}
