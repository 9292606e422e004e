package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Length is the number of digits in a generated code.
const Length = 6

var upper = big.NewInt(1_000_000)

// Generate returns a 6-digit numeric code drawn uniformly from 000000-999999.
func Generate() string {
	n, err := rand.Int(rand.Reader, upper)
	if err != nil {
		// crypto/rand does not fail on supported platforms.
		panic(fmt.Sprintf("otp: read random: %v", err))
	}
	return fmt.Sprintf("%0*d", Length, n.Int64())
}

// WellFormed reports whether s has the shape of a generated code.
func WellFormed(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
