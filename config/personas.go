package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/upb/persona-router/models"
	"github.com/upb/persona-router/services"
	"github.com/upb/persona-router/utils"
)

// personaFile is the on-disk shape of a persona table
type personaFile struct {
	Personas []personaEntry `yaml:"personas" validate:"required,min=1,dive"`
}

type personaEntry struct {
	Name        string        `yaml:"name" validate:"required"`
	Description string        `yaml:"description"`
	Primary     bindingEntry  `yaml:"primary"`
	Backup      *bindingEntry `yaml:"backup" validate:"omitempty"`
}

type bindingEntry struct {
	Vendor  string `yaml:"vendor" validate:"required,oneof=openai gemini deepseek"`
	Model   string `yaml:"model" validate:"required"`
	Timeout string `yaml:"timeout" validate:"omitempty,duration"`
}

// LoadPersonas reads a YAML persona table from path.
// An empty path returns DefaultPersonas.
//
//	personas:
//	  - name: ALEX
//	    primary: {vendor: openai, model: gpt-4o-mini, timeout: 8s}
//	    backup:  {vendor: gemini, model: gemini-2.0-flash}
func LoadPersonas(path string) ([]models.Persona, error) {
	if path == "" {
		return DefaultPersonas(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.WrapConfiguration(fmt.Sprintf("failed to read persona file %s", path), err)
	}

	return ParsePersonas(data)
}

// ParsePersonas decodes and validates a YAML persona table
func ParsePersonas(data []byte) ([]models.Persona, error) {
	var file personaFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: %v", services.ErrInvalidPersonaFile, err)
	}

	if err := utils.ValidateStruct(&file); err != nil {
		return nil, fmt.Errorf("%w: %v", services.ErrInvalidPersonaFile, err)
	}

	personas := make([]models.Persona, 0, len(file.Personas))
	seen := make(map[string]bool, len(file.Personas))
	for i, entry := range file.Personas {
		name := strings.ToUpper(strings.TrimSpace(entry.Name))
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate persona %q", services.ErrInvalidPersonaFile, name)
		}
		seen[name] = true

		primary := entry.Primary.toBinding()
		if primary.Timeout <= 0 {
			return nil, fmt.Errorf("%w: personas[%d].primary.timeout must be greater than zero",
				services.ErrInvalidPersonaFile, i)
		}

		p := models.Persona{
			Name:        name,
			Description: entry.Description,
			Primary:     primary,
		}
		if entry.Backup != nil {
			backup := entry.Backup.toBinding()
			if backup.Timeout < 0 {
				return nil, fmt.Errorf("%w: personas[%d].backup.timeout must not be negative",
					services.ErrInvalidPersonaFile, i)
			}
			p.Backup = &backup
		}
		personas = append(personas, p)
	}

	return personas, nil
}

// toBinding assumes the entry passed validation. An unparseable timeout maps to -1.
func (b bindingEntry) toBinding() models.Binding {
	var timeout time.Duration
	if b.Timeout != "" {
		var err error
		if timeout, err = time.ParseDuration(b.Timeout); err != nil {
			timeout = -1
		}
	}
	return models.Binding{
		Vendor:  models.Vendor(b.Vendor),
		Model:   strings.TrimSpace(b.Model),
		Timeout: timeout,
	}
}

// DefaultPersonas returns the built-in persona table
func DefaultPersonas() []models.Persona {
	return []models.Persona{
		{
			Name:        "ALEX",
			Description: "Sales assistant",
			Primary:     models.Binding{Vendor: models.VendorOpenAI, Model: "gpt-4o-mini", Timeout: 8 * time.Second},
			Backup:      &models.Binding{Vendor: models.VendorGemini, Model: "gemini-2.0-flash"},
		},
		{
			Name:        "TALKME",
			Description: "Language tutor",
			Primary:     models.Binding{Vendor: models.VendorGemini, Model: "gemini-2.0-flash", Timeout: 6 * time.Second},
			Backup:      &models.Binding{Vendor: models.VendorDeepSeek, Model: "deepseek-chat"},
		},
		{
			Name:        "ROLEPLAY",
			Description: "Interview coach",
			Primary:     models.Binding{Vendor: models.VendorOpenAI, Model: "gpt-4o", Timeout: 15 * time.Second},
			Backup:      &models.Binding{Vendor: models.VendorOpenAI, Model: "gpt-4o-mini"},
		},
	}
}
