package ldap

import (
	"testing"
)

func TestConnectionConfig_GetAuthMethod(t *testing.T) {
	tests := []struct {
		name     string
		config   *ConnectionConfig
		expected AuthMethod
	}{
		{
			name: "simple bind with username and password",
			config: &ConnectionConfig{
				Username: "testuser",
				Password: "testpass",
			},
			expected: AuthMethodSimpleBind,
		},
		{
			name: "kerberos with realm and keytab",
			config: &ConnectionConfig{
				Username:       "testuser",
				KerberosRealm:  "EXAMPLE.COM",
				KerberosKeytab: "/path/to/keytab",
			},
			expected: AuthMethodKerberos,
		},
		{
			name: "kerberos with realm and username (password auth)",
			config: &ConnectionConfig{
				Username:      "testuser",
				Password:      "testpass",
				KerberosRealm: "EXAMPLE.COM",
			},
			expected: AuthMethodKerberos, // Kerberos takes precedence
		},
		{
			name: "username only negotiates",
			config: &ConnectionConfig{
				Username: "testuser",
			},
			expected: AuthMethodKerberos,
		},
		{
			name: "explicit credential cache",
			config: &ConnectionConfig{
				KerberosCCache: "/tmp/krb5cc_1000",
			},
			expected: AuthMethodKerberos,
		},
		{
			name:     "empty config uses the current logon",
			config:   &ConnectionConfig{},
			expected: AuthMethodKerberos,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.config.GetAuthMethod()
			if result != tt.expected {
				t.Errorf("GetAuthMethod() = %v, expected %v", result, tt.expected)
			}
		})
	}
}

func TestAuthMethod_String(t *testing.T) {
	tests := []struct {
		method   AuthMethod
		expected string
	}{
		{AuthMethodSimpleBind, "simple"},
		{AuthMethodKerberos, "kerberos"},
		{AuthMethod(999), "unknown"}, // Invalid method
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := tt.method.String()
			if result != tt.expected {
				t.Errorf("String() = %v, expected %v", result, tt.expected)
			}
		})
	}
}
