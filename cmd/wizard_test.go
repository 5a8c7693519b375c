package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitAnswers_ToConfig(t *testing.T) {
	a := defaultAnswers()
	assert.Equal(t, "nftables", a.Backend)
	assert.True(t, a.Audit)

	a.Backend = "memory"
	a.Table = "  edge  "
	a.Level = "debug"
	a.Textfile = "/var/lib/node_exporter/textfile/fwrules.prom"

	cfg, err := a.toConfig()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "edge", cfg.Store.Table)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Audit.Enabled)
	assert.NotEmpty(t, cfg.Audit.Path)
}

func TestInitAnswers_Invalid(t *testing.T) {
	a := defaultAnswers()
	a.Level = "loud"
	_, err := a.toConfig()
	assert.Error(t, err)
}

func TestWizardValidators(t *testing.T) {
	assert.Error(t, validateTableName(" "))
	assert.NoError(t, validateTableName("fwrules"))

	assert.NoError(t, validateTextfile(""))
	assert.Error(t, validateTextfile("fwrules.prom"))
	assert.Error(t, validateTextfile("/tmp/fwrules.txt"))
	assert.NoError(t, validateTextfile("/tmp/fwrules.prom"))
}

func TestNewInitForm(t *testing.T) {
	a := defaultAnswers()
	assert.NotNil(t, newInitForm(&a))
}
