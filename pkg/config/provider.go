package config

import (
	"os"
	"strconv"
)

// Feature flag keys consumed by the account service.
const (
	KeyAllowPublicAccountCreation = "ALLOW_PUBLIC_ACCOUNT_CREATION"
	KeyAllowEmailAddressChange    = "ALLOW_EMAIL_ADDRESS_CHANGE"
	KeyEmailFromAddress           = "EMAIL_FROM_ADDRESS"
)

// Provider is a keyed configuration lookup with fallback defaults.
type Provider interface {
	GetBool(key string, defaultValue bool) bool
	GetString(key string, defaultValue string) string
}

// EnvProvider reads configuration values from the process environment.
type EnvProvider struct{}

// NewEnvProvider creates an environment-backed configuration provider.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{}
}

// GetBool returns the boolean value for key, or defaultValue when the key is
// unset or unparsable.
func (p *EnvProvider) GetBool(key string, defaultValue bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

// GetString returns the string value for key, or defaultValue when unset.
func (p *EnvProvider) GetString(key string, defaultValue string) string {
	if raw, ok := os.LookupEnv(key); ok {
		return raw
	}
	return defaultValue
}

// Static is a fixed configuration map, handy for tests and for wiring values
// already parsed elsewhere.
type Static map[string]string

// GetBool returns the boolean value for key, or defaultValue when the key is
// missing or unparsable.
func (s Static) GetBool(key string, defaultValue bool) bool {
	raw, ok := s[key]
	if !ok {
		return defaultValue
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

// GetString returns the string value for key, or defaultValue when missing.
func (s Static) GetString(key string, defaultValue string) string {
	if raw, ok := s[key]; ok {
		return raw
	}
	return defaultValue
}
