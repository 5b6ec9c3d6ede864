// Package id provides unique identifier generation for generation jobs.
package id

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// Prefix is prepended to every generated job ID.
const Prefix = "gen_"

// Generate creates a new unique job ID.
// Format: gen_<uuid without dashes>
// Example: gen_9f1c2d3e4b5a46778899aabbccddeeff
func Generate() string {
	u := uuid.New()
	return Prefix + hex.EncodeToString(u[:])
}

// Valid reports whether s looks like an ID produced by Generate.
func Valid(s string) bool {
	if len(s) != len(Prefix)+32 || s[:len(Prefix)] != Prefix {
		return false
	}
	_, err := uuid.Parse(s[len(Prefix):])
	return err == nil
}
