// Package utils provides small shared helpers, currently secure random
// string generation for one-time tokens and activation keys.
package utils
