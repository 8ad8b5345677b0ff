package provider

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/hashicorp/terraform-plugin-framework/providerserver"
	"github.com/hashicorp/terraform-plugin-go/tfprotov6"
)

// testAccProtoV6ProviderFactories is used to instantiate a provider during acceptance testing.
// The factory function is called for each Terraform CLI command to create a provider
// server that the CLI can connect to and interact with.
var testAccProtoV6ProviderFactories = map[string]func() (tfprotov6.ProviderServer, error){
	"ad": providerserver.NewProtocol6WithError(New("test")()),
}

// Environment variables for acceptance test configuration.
const (
	EnvTestDomain    = "AD_TEST_DOMAIN"
	EnvTestServer    = "AD_TEST_SERVER"
	EnvTestUsername  = "AD_TEST_USERNAME"
	EnvTestPassword  = "AD_TEST_PASSWORD"
	EnvTestRealm     = "AD_TEST_REALM"
	EnvTestKeytab    = "AD_TEST_KEYTAB"
	EnvTestTransport = "AD_TEST_TRANSPORT"
)

// TestConfig holds acceptance test configuration.
type TestConfig struct {
	Domain      string
	Server      string
	Username    string
	Password    string
	Realm       string
	Keytab      string
	Transport   string
	UseKerberos bool
}

// GetTestConfig returns the test configuration from environment variables.
func GetTestConfig() *TestConfig {
	config := &TestConfig{
		Domain:    os.Getenv(EnvTestDomain),
		Server:    os.Getenv(EnvTestServer),
		Username:  os.Getenv(EnvTestUsername),
		Password:  os.Getenv(EnvTestPassword),
		Realm:     os.Getenv(EnvTestRealm),
		Keytab:    os.Getenv(EnvTestKeytab),
		Transport: os.Getenv(EnvTestTransport),
	}

	config.UseKerberos = config.Keytab != "" && config.Realm != ""

	return config
}

func testAccPreCheck(t *testing.T) {
	if os.Getenv("TF_ACC") == "" {
		t.Skip("Skipping acceptance test - set TF_ACC=1 to run")
	}

	config := GetTestConfig()

	if config.Domain == "" && config.Server == "" {
		t.Skipf("Skipping test: either %s or %s must be set to a real AD environment", EnvTestDomain, EnvTestServer)
	}

	if config.Username == "" {
		t.Skipf("Skipping test: %s must be set", EnvTestUsername)
	}

	if config.Password == "" && !config.UseKerberos {
		t.Skipf("Skipping test: %s must be set (or configure Kerberos with %s and %s)", EnvTestPassword, EnvTestKeytab, EnvTestRealm)
	}
}

// testAccProviderConfig generates provider configuration for acceptance tests.
func testAccProviderConfig() string {
	config := GetTestConfig()

	var providerConfig strings.Builder
	providerConfig.WriteString("provider \"ad\" {\n")

	if config.Server != "" {
		providerConfig.WriteString(fmt.Sprintf("  server = %q\n", config.Server))
	} else {
		providerConfig.WriteString(fmt.Sprintf("  domain = %q\n", config.Domain))
	}

	providerConfig.WriteString(fmt.Sprintf("  username = %q\n", config.Username))

	if config.UseKerberos {
		providerConfig.WriteString(fmt.Sprintf("  kerberos_realm = %q\n", config.Realm))
		providerConfig.WriteString(fmt.Sprintf("  kerberos_keytab = %q\n", config.Keytab))
	}
	if config.Password != "" {
		providerConfig.WriteString(fmt.Sprintf("  password = %q\n", config.Password))
	}

	if config.Transport != "" {
		providerConfig.WriteString(fmt.Sprintf("  transport = %q\n", config.Transport))
	}

	providerConfig.WriteString("}\n")
	return providerConfig.String()
}
