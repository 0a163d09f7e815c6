package utils

import (
	"crypto/rand"
	"math/big"
)

const randomStringCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateRandomString returns a cryptographically secure random string of
// the given length, suitable for activation keys and reset tokens.
func GenerateRandomString(length int) string {
	result := make([]byte, length)
	max := big.NewInt(int64(len(randomStringCharset)))
	for i := range result {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		result[i] = randomStringCharset[n.Int64()]
	}
	return string(result)
}
