// Package idgen provides pluggable ID generation. Within webdog it
// supplies the alert correlation IDs that package alert stamps on each
// Alert and carries into its log lines.
package idgen

import (
	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings,
// time-sortable and globally unique.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is the package-wide default generator.
var Default = UUIDv7()

// New generates an ID using Default.
func New() string {
	return Default()
}
