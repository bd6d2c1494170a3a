package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// SetValue sets a setting by its YAML key. Supported keys:
//   - scratch_dir, user_agent, locale, listen_address, log_level: string
//   - http_timeout: duration such as "45s"
//   - max_concurrent: positive integer
//
// The result is validated before it is applied.
func (c *Config) SetValue(key, value string) error {
	next := c.Settings
	switch key {
	case "scratch_dir":
		next.ScratchDir = value
	case "user_agent":
		next.UserAgent = value
	case "locale":
		next.Locale = value
	case "listen_address":
		next.ListenAddress = value
	case "log_level":
		next.LogLevel = strings.ToLower(value)
	case "http_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %s", key, value)
		}
		next.HTTPTimeout = d
	case "max_concurrent":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer for %s: %s", key, value)
		}
		next.MaxConcurrent = n
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	if err := validateSettings(next); err != nil {
		return err
	}
	c.Settings = next
	return nil
}

// GetValue returns a setting by its YAML key.
func (c *Config) GetValue(key string) (string, error) {
	v, ok := c.ToMap()[key]
	if !ok {
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
	return v, nil
}

// ToMap renders the settings keyed by their YAML names, for display.
func (c *Config) ToMap() map[string]string {
	result := make(map[string]string)

	settingsValue := reflect.ValueOf(c.Settings)
	settingsType := settingsValue.Type()

	for i := 0; i < settingsValue.NumField(); i++ {
		field := settingsType.Field(i)
		yamlTag := field.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		yamlKey := strings.Split(yamlTag, ",")[0]

		switch v := settingsValue.Field(i).Interface().(type) {
		case time.Duration:
			result[yamlKey] = v.String()
		case int:
			result[yamlKey] = strconv.Itoa(v)
		case string:
			result[yamlKey] = v
		default:
			result[yamlKey] = fmt.Sprintf("%v", v)
		}
	}
	return result
}
