package prefs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrPreferenceNotFound is returned when a user has no stored value for a key.
var ErrPreferenceNotFound = errors.New("preference not found")

// PreferenceError carries the diagnostic and user-facing message for one
// rejected preference.
type PreferenceError struct {
	DeveloperMessage string `json:"developer_message"`
	UserMessage      string `json:"user_message"`
}

// ValidationError aggregates per-preference validation failures for one
// update call.
type ValidationError struct {
	PreferenceErrors map[string]PreferenceError
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.PreferenceErrors))
	for key := range e.PreferenceErrors {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return fmt.Sprintf("preference validation failed for: %s", strings.Join(keys, ", "))
}
