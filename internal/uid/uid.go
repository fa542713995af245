// Package uid provides identifier and name generation for the integrity
// harness.
package uid

import (
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
)

const (
	lowercase = "abcdefghijklmnopqrstuvwxyz"
	digits    = "0123456789"
)

// New returns a random (version 4) UUID string. Multipart scenario keys and
// run identifiers embed it to stay unique across sweeps.
func New() string {
	return uuid.NewString()
}

// BucketName returns a random DNS-compatible bucket name: a lowercase letter,
// 20 characters from [a-z0-9-], and a trailing digit.
func BucketName(rng *rand.Rand) string {
	all := lowercase + digits + "-"
	var sb strings.Builder
	sb.WriteByte(lowercase[rng.IntN(len(lowercase))])
	for i := 0; i < 20; i++ {
		sb.WriteByte(all[rng.IntN(len(all))])
	}
	sb.WriteByte(digits[rng.IntN(len(digits))])
	return sb.String()
}

// KeyName returns a random 22-letter lowercase object key.
func KeyName(rng *rand.Rand) string {
	var sb strings.Builder
	for i := 0; i < 22; i++ {
		sb.WriteByte(lowercase[rng.IntN(len(lowercase))])
	}
	return sb.String()
}
