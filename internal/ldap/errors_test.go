package ldap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLDAPError(t *testing.T) {
	tests := []struct {
		name          string
		operation     string
		err           error
		wantNil       bool
		wantCategory  ErrorCategory
		wantRetryable bool
		wantCode      uint16
	}{
		{
			name:      "nil error",
			operation: "search",
			err:       nil,
			wantNil:   true,
		},
		{
			name:         "invalid credentials",
			operation:    "bind",
			err:          ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("bad password")),
			wantCategory: ErrorCategoryAuthentication,
			wantCode:     ldap.LDAPResultInvalidCredentials,
		},
		{
			name:          "busy server",
			operation:     "lookup_email",
			err:           ldap.NewError(ldap.LDAPResultBusy, errors.New("busy")),
			wantCategory:  ErrorCategoryServer,
			wantRetryable: true,
			wantCode:      ldap.LDAPResultBusy,
		},
		{
			name:          "network error",
			operation:     "lookup_short_name",
			err:           ldap.NewError(ldap.ErrorNetwork, errors.New("connection closed")),
			wantCategory:  ErrorCategoryConnection,
			wantRetryable: true,
			wantCode:      ldap.ErrorNetwork,
		},
		{
			name:          "generic connection error",
			operation:     "connect",
			err:           errors.New("connection refused"),
			wantCategory:  ErrorCategoryConnection,
			wantRetryable: true,
		},
		{
			name:         "wrapped result error",
			operation:    "discover_domains",
			err:          fmt.Errorf("partitions: %w", ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("missing"))),
			wantCategory: ErrorCategoryNotFound,
			wantCode:     ldap.LDAPResultNoSuchObject,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewLDAPError(tt.operation, tt.err)
			if tt.wantNil {
				assert.Nil(t, result)
				return
			}

			require.NotNil(t, result)
			assert.Equal(t, tt.operation, result.Operation)
			assert.Equal(t, tt.wantCategory, result.Category)
			assert.Equal(t, tt.wantRetryable, result.IsRetryable())
			assert.Equal(t, tt.wantCode, result.LDAPCode)
			assert.Same(t, tt.err, result.Cause)
			assert.ErrorIs(t, result, tt.err)
		})
	}
}

func TestLDAPError_Error(t *testing.T) {
	err := &LDAPError{
		Operation: "lookup_email",
		LDAPCode:  ldap.LDAPResultBusy,
		Message:   "Server is busy",
		ServerMsg: "try later",
	}
	assert.Equal(t, "LDAP lookup_email failed (code 51) - Server is busy - server: try later", err.Error())

	plain := &LDAPError{Operation: "connect", Message: "refused", ServerMsg: "refused"}
	assert.Equal(t, "LDAP connect failed - refused", plain.Error())
}

func TestCategorizeGenericError(t *testing.T) {
	assert.Equal(t, ErrorCategoryConnection, categorizeGenericError(&net.OpError{Op: "dial", Err: errors.New("x")}))
	assert.Equal(t, ErrorCategoryConnection, categorizeGenericError(NewConnectionError("bind failed", false, nil)))
	assert.Equal(t, ErrorCategoryConnection, categorizeGenericError(errors.New("i/o timeout")))
	assert.Equal(t, ErrorCategoryAuthentication, categorizeGenericError(errors.New("no Kerberos credential cache")))
	assert.Equal(t, ErrorCategoryUnknown, categorizeGenericError(errors.New("something odd")))
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError("search", nil))

	base := NewLDAPError("", errors.New("boom"))
	wrapped := WrapError("lookup_email", base)
	var ldapErr *LDAPError
	require.ErrorAs(t, wrapped, &ldapErr)
	assert.Equal(t, "lookup_email", ldapErr.Operation)

	first := NewLDAPError("discover_domains", errors.New("boom"))
	assert.Equal(t, "discover_domains", WrapError("other", first).(*LDAPError).Operation)

	fresh := WrapError("lookup_short_name", errors.New("boom"))
	require.ErrorAs(t, fresh, &ldapErr)
	assert.Equal(t, "lookup_short_name", ldapErr.Operation)
}

func TestErrorHelpers(t *testing.T) {
	connErr := NewConnectionError("bind to dc1 failed", false, ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("bad")))
	assert.True(t, IsConnectionError(connErr))
	assert.True(t, IsConnectionError(fmt.Errorf("open: %w", connErr)))
	assert.False(t, IsRetryableError(connErr))
	assert.ErrorIs(t, connErr, connErr.Unwrap())

	retryable := NewConnectionError("dial", true, nil)
	assert.True(t, IsRetryableError(retryable))
	assert.Equal(t, "dial", retryable.Error())

	notFound := ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("missing"))
	assert.True(t, IsNotFoundError(notFound))
	assert.False(t, IsConnectionError(notFound))

	auth := NewLDAPError("bind", ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("bad")))
	assert.True(t, IsAuthenticationError(auth))

	assert.False(t, IsConnectionError(context.Canceled))
	assert.Equal(t, ErrorCategoryUnknown, GetErrorCategory(nil))
	assert.False(t, IsRetryableError(nil))
}
