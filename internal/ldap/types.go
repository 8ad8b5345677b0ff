package ldap

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-ldap/ldap/v3"
)

// ConnectionConfig holds configuration for directory connections.
type ConnectionConfig struct {
	// Server selection
	Domain string // AD DNS domain used to locate the PDC role holder
	Server string // Explicit server host (overrides domain discovery)

	// Timeouts
	Timeout        time.Duration `default:"5s"`  // Dial and bind timeout for probes and Open
	RequestTimeout time.Duration `default:"30s"` // Per-query timeout on an open session

	// Ports
	SecurePort   int `default:"636"` // LDAPS
	InsecurePort int `default:"389"` // LDAP

	// Authentication settings
	Username       string // Username for simple bind (DN, UPN, or SAM format)
	Password       string // Password for simple bind
	KerberosRealm  string // Kerberos realm for GSSAPI authentication
	KerberosConfig string `default:"/etc/krb5.conf"` // Path to krb5.conf
	KerberosKeytab string // Path to Kerberos keytab file
	KerberosCCache string // Path to Kerberos credential cache
	KerberosSPN    string // Service principal override (ldap/<host>)

	// TLS settings
	TLSConfig       *tls.Config // Custom TLS configuration
	TLSCACertFile   string      // Path to CA certificate file
	DisableStartTLS bool        // Do not attempt StartTLS on insecure transport
}

// DefaultConfig returns a secure default configuration.
func DefaultConfig() *ConnectionConfig {
	cfg := &ConnectionConfig{}
	defaults.MustSet(cfg)

	cfg.TLSConfig = &tls.Config{
		MinVersion: tls.VersionTLS12,
		// Certificate validation enabled by default
		InsecureSkipVerify: false,
	}
	return cfg
}

// Transport is the outcome of connection negotiation.
type Transport int

const (
	TransportNone     Transport = iota // No connectivity
	TransportSecure                    // LDAPS on the secure port
	TransportInsecure                  // LDAP on the plaintext port
)

// String returns string representation of the transport.
func (t Transport) String() string {
	switch t {
	case TransportSecure:
		return "secure"
	case TransportInsecure:
		return "insecure"
	default:
		return "none"
	}
}

// TransportFromString parses "secure" or "insecure"; anything else is TransportNone.
func TransportFromString(s string) Transport {
	switch s {
	case "secure", "ldaps":
		return TransportSecure
	case "insecure", "ldap":
		return TransportInsecure
	default:
		return TransportNone
	}
}

// Port returns the TCP port for the transport under cfg.
func (t Transport) Port(cfg *ConnectionConfig) int {
	if t == TransportSecure {
		return cfg.SecurePort
	}
	return cfg.InsecurePort
}

// ServerInfo contains information about a directory server.
type ServerInfo struct {
	Host     string
	Priority int
	Weight   int
	Source   string // "config", "pdc", "fallback"
}

// Directory is the read-only query surface of an open session.
type Directory interface {
	// Search performs a single search scoped by req.
	Search(ctx context.Context, req *SearchRequest) (*SearchResult, error)

	// BaseDN returns the default naming context resolved at bind time.
	BaseDN() string

	// ConfigurationDN returns the configuration naming context, or "" when the
	// root DSE did not publish one.
	ConfigurationDN() string
}

// SearchRequest encapsulates LDAP search parameters.
type SearchRequest struct {
	BaseDN       string
	Scope        SearchScope
	Filter       string
	Attributes   []string
	SizeLimit    int
	TimeLimit    time.Duration
	DerefAliases DerefAliases
}

// SearchResult contains search results and metadata.
type SearchResult struct {
	Entries []*ldap.Entry
	Total   int
}

// SearchScope defines LDAP search scope.
type SearchScope int

const (
	ScopeBaseObject SearchScope = iota
	ScopeSingleLevel
	ScopeWholeSubtree
)

func (s SearchScope) String() string {
	switch s {
	case ScopeBaseObject:
		return "base"
	case ScopeSingleLevel:
		return "one"
	case ScopeWholeSubtree:
		return "sub"
	default:
		return "unknown"
	}
}

// DerefAliases defines alias dereferencing behavior.
type DerefAliases int

const (
	NeverDerefAliases DerefAliases = iota
	DerefInSearching
	DerefFindingBaseObj
	DerefAlways
)

// AuthMethod defines authentication method types.
type AuthMethod int

const (
	AuthMethodSimpleBind AuthMethod = iota // Username/password authentication
	AuthMethodKerberos                     // GSSAPI/Kerberos (negotiated) authentication
)

// String returns string representation of authentication method.
func (a AuthMethod) String() string {
	switch a {
	case AuthMethodSimpleBind:
		return "simple"
	case AuthMethodKerberos:
		return "kerberos"
	default:
		return "unknown"
	}
}

// GetAuthMethod determines the authentication method from the configuration.
// An explicit username and password select simple bind; everything else,
// including an explicitly configured realm, negotiates with Kerberos.
func (c *ConnectionConfig) GetAuthMethod() AuthMethod {
	if c.KerberosRealm != "" {
		return AuthMethodKerberos
	}

	if c.Username != "" && c.Password != "" {
		return AuthMethodSimpleBind
	}

	return AuthMethodKerberos
}

// RetryableError indicates an error that can be retried.
type RetryableError interface {
	error
	IsRetryable() bool
}

// ConnectionError represents connection-related errors.
type ConnectionError struct {
	message   string
	retryable bool
	cause     error
}

func (e *ConnectionError) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func (e *ConnectionError) IsRetryable() bool {
	return e.retryable
}

func (e *ConnectionError) Unwrap() error {
	return e.cause
}

// NewConnectionError creates a new connection error.
func NewConnectionError(message string, retryable bool, cause error) *ConnectionError {
	return &ConnectionError{
		message:   message,
		retryable: retryable,
		cause:     cause,
	}
}
