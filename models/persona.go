package models

import (
	"fmt"
	"time"
)

// Vendor identifies an AI provider adapter
type Vendor string

const (
	VendorOpenAI   Vendor = "openai"
	VendorGemini   Vendor = "gemini"
	VendorDeepSeek Vendor = "deepseek"
)

// Binding ties a persona slot to a vendor, a model and a per-call timeout
type Binding struct {
	Vendor  Vendor        `json:"vendor"`
	Model   string        `json:"model"`
	Timeout time.Duration `json:"timeout"`
}

// String returns "vendor/model"
func (b Binding) String() string {
	return fmt.Sprintf("%s/%s", b.Vendor, b.Model)
}

// Persona is a logical task (sales assistant, tutor, coach...) with a
// first-choice binding and an optional failover binding.
type Persona struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Primary     Binding  `json:"primary"`
	Backup      *Binding `json:"backup,omitempty"`
}

// HasBackup reports whether a failover binding is configured
func (p Persona) HasBackup() bool {
	return p.Backup != nil
}

// Vendors returns the distinct vendors the persona depends on
func (p Persona) Vendors() []Vendor {
	vendors := []Vendor{p.Primary.Vendor}
	if p.Backup != nil && p.Backup.Vendor != p.Primary.Vendor {
		vendors = append(vendors, p.Backup.Vendor)
	}
	return vendors
}
