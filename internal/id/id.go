// Package id generates short random identifiers. No other package in
// this module calls it; connection identity is always the slave's
// claimed hostname, not a generated ID.
package id

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// Generate returns a 24-character random identifier.
func Generate() string {
	v, err := gonanoid.Generate(alphabet, 24)
	if err != nil {
		// The only failure mode is a broken entropy source; there is
		// no sane fallback, so this mirrors the teacher's choice to
		// let it panic rather than hand back a degraded ID.
		panic(err)
	}
	return v
}
