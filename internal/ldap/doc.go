/*
Package ldap provides the read-only Active Directory access used to classify
user accounts.

# Connection

A run starts by locating a server and choosing a transport:

  - Locator: explicit server, else the PDC role holder of the domain found
    through _ldap._tcp.pdc._msdcs.<domain>, else the domain name itself
  - Probe: a full dial and bind over LDAPS, then over LDAP, each bounded by
    ConnectionConfig.Timeout; the result is Secure, Insecure or None
  - Open: a bound Session over the chosen transport with the default and
    configuration naming contexts read from the root DSE

Simple bind is used when a username and password are configured. Otherwise the
session negotiates with Kerberos (GSSAPI) from a credential cache, keytab or
password. Insecure sessions upgrade with StartTLS. Only an explicit refusal
from the server leaves the session in plaintext, and a simple bind is then
refused unless ConnectionConfig.DisableStartTLS is set.

# Queries

A Session serialises its queries: exactly one is on the wire at a time. Every
user-supplied value passes through EscapeFilterValue before it reaches a
filter.

  - UserResolver: lookups by email (mail, userPrincipalName, SMTP proxy
    addresses) and by sAMAccountName, restricted to person-category users
  - DiscoverInternalDomains: DNS roots of every domain partition in the forest
    plus its alternate UPN suffixes

# Error Handling

Session establishment failures are *ConnectionError. Individual query faults
are *LDAPError, categorised by LDAP result code.

# Example Usage

	cfg := ldap.DefaultConfig()
	cfg.Domain = "example.com"

	server, err := ldap.LocateServer(ctx, cfg)
	if err != nil {
		return err
	}

	transport := ldap.Probe(ctx, cfg, server.Host)
	if transport == ldap.TransportNone {
		return errors.New("directory unreachable")
	}

	session, err := ldap.Open(ctx, cfg, server.Host, transport)
	if err != nil {
		return err
	}
	defer session.Close()

	lookup, err := ldap.NewUserResolver(session).FindByEmail(ctx, "jdoe@example.com")
*/
package ldap
