// Package options reads typed values out of the string option maps carried
// by codec and filter contributions. Missing keys fall back to the default;
// malformed values are configuration errors.
package options

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/c360/streamcompute/errors"
)

// Map is a contribution option map.
type Map map[string]string

// String returns the trimmed value for key or defaultVal when absent or blank.
func (m Map) String(key, defaultVal string) string {
	if v, ok := m[key]; ok {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return defaultVal
}

// Int parses key as an integer.
func (m Map) Int(key string, defaultVal int) (int, error) {
	v := m.String(key, "")
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Config(errors.ErrInvalidConfig, "options", "Int", fmt.Sprintf("option %s=%q is not an integer", key, v))
	}
	return n, nil
}

// Bool parses key as a boolean.
func (m Map) Bool(key string, defaultVal bool) (bool, error) {
	v := m.String(key, "")
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.Config(errors.ErrInvalidConfig, "options", "Bool", fmt.Sprintf("option %s=%q is not a boolean", key, v))
	}
	return b, nil
}

// Duration parses key as a Go duration.
func (m Map) Duration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := m.String(key, "")
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Config(errors.ErrInvalidConfig, "options", "Duration", fmt.Sprintf("option %s=%q is not a duration", key, v))
	}
	return d, nil
}

// OneOf returns the value of key, which must be one of allowed.
func (m Map) OneOf(key, defaultVal string, allowed ...string) (string, error) {
	v := strings.ToLower(m.String(key, defaultVal))
	for _, a := range allowed {
		if v == a {
			return v, nil
		}
	}
	return "", errors.Config(errors.ErrInvalidConfig, "options", "OneOf",
		fmt.Sprintf("option %s=%q must be one of %v", key, v, allowed))
}
