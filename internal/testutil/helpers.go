package testutil

import (
	"os"
	"testing"
)

// IntegrationEnv enables tests that change the host's nftables ruleset.
const IntegrationEnv = "FWRULES_INTEGRATION"

// RequireIntegration skips the test unless IntegrationEnv is set and the
// process runs as root. Such tests need CAP_NET_ADMIN and must only run in a
// disposable VM or network namespace.
func RequireIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv(IntegrationEnv) == "" {
		t.Skipf("Skipping test: requires %s environment", IntegrationEnv)
	}
	if os.Geteuid() != 0 {
		t.Skip("Skipping test: requires root")
	}
}
