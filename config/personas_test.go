package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/persona-router/models"
	"github.com/upb/persona-router/services"
)

func TestLoadPersonas_EmptyPathUsesDefaults(t *testing.T) {
	personas, err := LoadPersonas("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPersonas(), personas)
}

func TestDefaultPersonas(t *testing.T) {
	personas := DefaultPersonas()
	require.Len(t, personas, 3)

	byName := make(map[string]models.Persona)
	for _, p := range personas {
		byName[p.Name] = p
		require.True(t, p.HasBackup(), p.Name)
		assert.Zero(t, p.Backup.Timeout, "built-in backups are unbounded")
		assert.Positive(t, p.Primary.Timeout)
	}

	assert.Equal(t, "openai/gpt-4o-mini", byName["ALEX"].Primary.String())
	assert.Equal(t, "gemini/gemini-2.0-flash", byName["ALEX"].Backup.String())
	assert.Equal(t, 6*time.Second, byName["TALKME"].Primary.Timeout)
	assert.Equal(t, models.VendorDeepSeek, byName["TALKME"].Backup.Vendor)
	assert.Equal(t, []models.Vendor{models.VendorOpenAI}, byName["ROLEPLAY"].Vendors())
}

func TestLoadPersonas_File(t *testing.T) {
	content := `
personas:
  - name: alex
    description: Sales assistant
    primary:
      vendor: openai
      model: gpt-4o-mini
      timeout: 50ms
    backup:
      vendor: gemini
      model: gemini-2.0-flash
      timeout: 2s
  - name: SOLO
    primary:
      vendor: deepseek
      model: deepseek-chat
      timeout: 1m
`
	path := filepath.Join(t.TempDir(), "personas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	personas, err := LoadPersonas(path)
	require.NoError(t, err)
	require.Len(t, personas, 2)

	alex := personas[0]
	assert.Equal(t, "ALEX", alex.Name)
	assert.Equal(t, "Sales assistant", alex.Description)
	assert.Equal(t, 50*time.Millisecond, alex.Primary.Timeout)
	require.NotNil(t, alex.Backup)
	assert.Equal(t, 2*time.Second, alex.Backup.Timeout)

	solo := personas[1]
	assert.False(t, solo.HasBackup())
	assert.Equal(t, models.VendorDeepSeek, solo.Primary.Vendor)
	assert.Equal(t, time.Minute, solo.Primary.Timeout)
}

func TestLoadPersonas_MissingFile(t *testing.T) {
	_, err := LoadPersonas(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, services.IsConfigurationError(err))
}

func TestParsePersonas_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{
			name:    "malformed yaml",
			content: "personas: [",
		},
		{
			name:    "no personas",
			content: "personas: []",
			wantMsg: "personas",
		},
		{
			name: "unknown vendor",
			content: `
personas:
  - name: GHOST
    primary: {vendor: anthropic, model: x, timeout: 1s}
`,
			wantMsg: "personas[0].primary.vendor must be one of",
		},
		{
			name: "missing model",
			content: `
personas:
  - name: GHOST
    primary: {vendor: openai, timeout: 1s}
`,
			wantMsg: "personas[0].primary.model is required",
		},
		{
			name: "bad duration",
			content: `
personas:
  - name: GHOST
    primary: {vendor: openai, model: gpt-4o, timeout: soon}
`,
			wantMsg: "must be a duration",
		},
		{
			name: "missing primary timeout",
			content: `
personas:
  - name: GHOST
    primary: {vendor: openai, model: gpt-4o}
`,
			wantMsg: "primary.timeout must be greater than zero",
		},
		{
			name: "negative backup timeout",
			content: `
personas:
  - name: ALEX
    primary: {vendor: openai, model: gpt-4o, timeout: 1s}
    backup: {vendor: gemini, model: gemini-2.0-flash, timeout: -5s}
`,
			wantMsg: "personas[0].backup.timeout",
		},
		{
			name: "negative primary timeout",
			content: `
personas:
  - name: ALEX
    primary: {vendor: openai, model: gpt-4o, timeout: -1s}
`,
			wantMsg: "personas[0].primary.timeout",
		},
		{
			name: "duplicate names",
			content: `
personas:
  - name: alex
    primary: {vendor: openai, model: gpt-4o, timeout: 1s}
  - name: ALEX
    primary: {vendor: gemini, model: gemini-2.0-flash, timeout: 1s}
`,
			wantMsg: "duplicate persona",
		},
		{
			name: "unknown field",
			content: `
personas:
  - name: ALEX
    primary: {vendor: openai, model: gpt-4o, timeout: 1s, retries: 3}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePersonas([]byte(tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, services.ErrInvalidPersonaFile)
			assert.True(t, services.IsConfigurationError(err))
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}
