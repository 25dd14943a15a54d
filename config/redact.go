package config

import (
	"fmt"
	"net/url"
	"reflect"

	"github.com/goccy/go-yaml"
)

// RedactedValue replaces secrets in admin output.
const RedactedValue = "[REDACTED]"

// RedactConfig returns a deep copy of cfg safe to show on the admin API.
// String fields tagged `redact:"true"` (and every value of such a map) are
// replaced by RedactedValue; fields tagged `redact:"url"` keep the URL but
// lose any password. cfg is not modified.
func RedactConfig(cfg *Config) (*Config, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("redact: marshal failed: %w", err)
	}
	var cp Config
	if err := yaml.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("redact: unmarshal failed: %w", err)
	}
	walkStrings(reflect.ValueOf(&cp), "", "", func(field reflect.Value, _ string, tag reflect.StructTag) {
		if field.String() == "" {
			return
		}
		switch tag.Get("redact") {
		case "true":
			field.SetString(RedactedValue)
		case "url":
			field.SetString(RedactURL(field.String()))
		}
	})
	return &cp, nil
}

// RedactURL masks the password of a URL for logs and admin output. A value
// that does not parse is replaced entirely.
func RedactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return RedactedValue
	}
	return u.Redacted()
}
