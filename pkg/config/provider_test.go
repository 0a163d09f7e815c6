package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvProvider(t *testing.T) {
	p := NewEnvProvider()

	t.Setenv("ACCOUNTS_TEST_BOOL", "false")
	assert.False(t, p.GetBool("ACCOUNTS_TEST_BOOL", true))

	t.Setenv("ACCOUNTS_TEST_BOOL", "not-a-bool")
	assert.True(t, p.GetBool("ACCOUNTS_TEST_BOOL", true))

	assert.True(t, p.GetBool("ACCOUNTS_TEST_UNSET", true))

	t.Setenv("ACCOUNTS_TEST_STRING", "value")
	assert.Equal(t, "value", p.GetString("ACCOUNTS_TEST_STRING", "fallback"))
	assert.Equal(t, "fallback", p.GetString("ACCOUNTS_TEST_STRING_UNSET", "fallback"))
}

func TestStatic(t *testing.T) {
	s := Static{
		KeyAllowPublicAccountCreation: "false",
		KeyEmailFromAddress:           "noreply@example.com",
		"bad":                         "nope",
	}

	assert.False(t, s.GetBool(KeyAllowPublicAccountCreation, true))
	assert.True(t, s.GetBool(KeyAllowEmailAddressChange, true))
	assert.True(t, s.GetBool("bad", true))
	assert.Equal(t, "noreply@example.com", s.GetString(KeyEmailFromAddress, "fallback"))
	assert.Equal(t, "fallback", s.GetString("missing", "fallback"))
}
