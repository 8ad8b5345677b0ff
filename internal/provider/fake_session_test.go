package provider

import (
	"context"
	"sync/atomic"

	ldapv3 "github.com/go-ldap/ldap/v3"

	"github.com/isometry/terraform-provider-adstatus/internal/batch"
	ldapclient "github.com/isometry/terraform-provider-adstatus/internal/ldap"
)

const (
	testBaseDN   = "DC=example,DC=com"
	testConfigDN = "CN=Configuration,DC=example,DC=com"
)

// fakeSession is an in-memory directory for a single forest with one child
// domain and one extra UPN suffix.
type fakeSession struct {
	users  map[string]*ldapv3.Entry
	closed atomic.Int32
}

func newFakeSession() *fakeSession {
	return &fakeSession{users: make(map[string]*ldapv3.Entry)}
}

func (s *fakeSession) addUser(sam, mail string, uac string) {
	attrs := map[string][]string{
		"sAMAccountName":    {sam},
		"displayName":       {"User " + sam},
		"userPrincipalName": {sam + "@example.com"},
	}
	if mail != "" {
		attrs["mail"] = []string{mail}
	}
	if uac != "" {
		attrs["userAccountControl"] = []string{uac}
	}

	entry := ldapv3.NewEntry("CN="+sam+",CN=Users,"+testBaseDN, attrs)
	if mail != "" {
		s.users[ldapclient.EmailFilter(ldapclient.NormalizeEmail(mail))] = entry
	}
	s.users[ldapclient.ShortNameFilter(sam)] = entry
}

func (s *fakeSession) BaseDN() string          { return testBaseDN }
func (s *fakeSession) ConfigurationDN() string { return testConfigDN }
func (s *fakeSession) Close()                  { s.closed.Add(1) }

func (s *fakeSession) Search(ctx context.Context, req *ldapclient.SearchRequest) (*ldapclient.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	partitionsDN := "CN=Partitions," + testConfigDN
	switch {
	case req.BaseDN == partitionsDN && req.Scope == ldapclient.ScopeSingleLevel:
		return &ldapclient.SearchResult{Entries: []*ldapv3.Entry{
			ldapv3.NewEntry("CN=EXAMPLE,"+partitionsDN, map[string][]string{
				"nCName":  {testBaseDN},
				"dnsRoot": {"example.com"},
			}),
			ldapv3.NewEntry("CN=CHILD,"+partitionsDN, map[string][]string{
				"nCName":  {"DC=child," + testBaseDN},
				"dnsRoot": {"Child.Example.com"},
			}),
		}}, nil
	case req.BaseDN == partitionsDN:
		return &ldapclient.SearchResult{Entries: []*ldapv3.Entry{
			ldapv3.NewEntry(partitionsDN, map[string][]string{
				"uPNSuffixes": {"corp.example"},
			}),
		}}, nil
	}

	if entry, ok := s.users[req.Filter]; ok {
		return &ldapclient.SearchResult{Entries: []*ldapv3.Entry{entry}, Total: 1}, nil
	}
	return &ldapclient.SearchResult{}, nil
}

// testProviderData wires session into ProviderData the way Configure does.
func testProviderData(session batch.Session, openErr error) *ProviderData {
	cfg := ldapclient.DefaultConfig()
	cfg.Username = "svc-adstatus@example.com"
	cfg.Password = "secret"

	opts, _ := batch.DefaultOptions()

	return &ProviderData{
		Config:    cfg,
		Server:    "DC01.EXAMPLE.COM",
		Transport: ldapclient.TransportSecure,
		Options:   opts,
		Opener: func(context.Context) (batch.Session, error) {
			if openErr != nil {
				return nil, openErr
			}
			return session, nil
		},
	}
}
