package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random UUID, optionally prefixed with "<prefix>_".
func NewID(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// NewToken returns an opaque random token without separators.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ReplaceAll(uuid.NewString(), "-", "")
}
