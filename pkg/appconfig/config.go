// Package appconfig owns the assistant settings: defaults, persisted values and
// the live value that streaming readers follow.
package appconfig

import (
	"fmt"

	"github.com/spf13/cast"
)

// Persisted field keys.
const (
	KeyAPIURL   = "apiUrl"
	KeyAPIKey   = "apiKey"
	KeyModel    = "model"
	KeyMaxSteps = "maxSteps"
)

// AppConfig configures the model endpoint used by chat.
type AppConfig struct {
	APIURL   string `json:"apiUrl"`
	APIKey   string `json:"apiKey"`
	Model    string `json:"model"`
	MaxSteps int    `json:"maxSteps"`
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		APIURL:   "https://api.openai.com/v1",
		APIKey:   "",
		Model:    "claude-sonnet-4",
		MaxSteps: 5,
	}
}

// Patch is a partial AppConfig. Nil fields are left unchanged.
type Patch struct {
	APIURL   *string `json:"apiUrl,omitempty"`
	APIKey   *string `json:"apiKey,omitempty"`
	Model    *string `json:"model,omitempty"`
	MaxSteps *int    `json:"maxSteps,omitempty"`
}

// Empty reports whether p changes nothing.
func (p Patch) Empty() bool {
	return p.APIURL == nil && p.APIKey == nil && p.Model == nil && p.MaxSteps == nil
}

// Keys lists the fields p sets, in declaration order.
func (p Patch) Keys() []string {
	var keys []string
	if p.APIURL != nil {
		keys = append(keys, KeyAPIURL)
	}
	if p.APIKey != nil {
		keys = append(keys, KeyAPIKey)
	}
	if p.Model != nil {
		keys = append(keys, KeyModel)
	}
	if p.MaxSteps != nil {
		keys = append(keys, KeyMaxSteps)
	}
	return keys
}

// Apply returns c with every set field of p copied over.
func (c AppConfig) Apply(p Patch) AppConfig {
	if p.APIURL != nil {
		c.APIURL = *p.APIURL
	}
	if p.APIKey != nil {
		c.APIKey = *p.APIKey
	}
	if p.Model != nil {
		c.Model = *p.Model
	}
	if p.MaxSteps != nil {
		c.MaxSteps = *p.MaxSteps
	}
	return c
}

// Validate rejects settings chat cannot run with.
func (c AppConfig) Validate() error {
	if c.MaxSteps < 1 {
		return fmt.Errorf("maxSteps must be at least 1, got %d", c.MaxSteps)
	}
	return nil
}

// Values flattens c into the key/value form stores persist.
func (c AppConfig) Values() map[string]any {
	return map[string]any{
		KeyAPIURL:   c.APIURL,
		KeyAPIKey:   c.APIKey,
		KeyModel:    c.Model,
		KeyMaxSteps: c.MaxSteps,
	}
}

// PatchFromValues reads persisted key/values back into a Patch. Values may come
// from JSON columns, so numbers arrive as floats and strings as anything; they
// are coerced. Unknown keys are ignored.
func PatchFromValues(values map[string]any) (Patch, error) {
	var p Patch
	for key, raw := range values {
		switch key {
		case KeyAPIURL, KeyAPIKey, KeyModel:
			s, err := cast.ToStringE(raw)
			if err != nil {
				return Patch{}, fmt.Errorf("%s - field %s: %w", logPrefix, key, err)
			}
			switch key {
			case KeyAPIURL:
				p.APIURL = &s
			case KeyAPIKey:
				p.APIKey = &s
			default:
				p.Model = &s
			}
		case KeyMaxSteps:
			n, err := cast.ToIntE(raw)
			if err != nil {
				return Patch{}, fmt.Errorf("%s - field %s: %w", logPrefix, key, err)
			}
			p.MaxSteps = &n
		}
	}
	return p, nil
}
