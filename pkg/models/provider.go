package models

import "time"

// Canonical provider names understood by the fetch registry.
const (
	ProviderAlphaVantage = "Alpha Vantage"
	ProviderFRED         = "FRED"
)

// Provider represents an external market data source configuration.
// Providers are read-mostly and referenced by instruments; they are
// deactivated rather than deleted while references exist.
type Provider struct {
	ID                 string    `json:"id" db:"id"`
	Name               string    `json:"name" db:"name"`
	Description        string    `json:"description,omitempty" db:"description"`
	BaseURL            string    `json:"base_url" db:"base_url"`
	APIKeyRequired     bool      `json:"api_key_required" db:"api_key_required"`
	RateLimitPerMinute int       `json:"rate_limit_per_minute,omitempty" db:"rate_limit_per_minute"` // advisory only
	IsActive           bool      `json:"is_active" db:"is_active"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}
