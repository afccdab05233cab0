// ABOUTME: Connection parameter generation: identity tokens, server and source address choice
// ABOUTME: Parameters are drawn fresh for every connection attempt

package omegle

import (
	"fmt"
	"math/rand/v2"
)

// idAlphabet omits 0, 1, I and O to avoid visually ambiguous characters.
const idAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// idLength is the length of an identity token.
const idLength = 8

// DefaultServers is the service's front server pool.
var DefaultServers = []string{
	"front1.omegle.com",
	"front2.omegle.com",
	"front3.omegle.com",
	"front4.omegle.com",
	"front5.omegle.com",
	"front6.omegle.com",
	"front7.omegle.com",
	"front8.omegle.com",
	"front9.omegle.com",
	"front10.omegle.com",
	"front11.omegle.com",
	"front12.omegle.com",
	"front13.omegle.com",
	"front14.omegle.com",
	"front15.omegle.com",
	"front16.omegle.com",
}

// ConnectionParams are the values drawn for a single connection attempt.
type ConnectionParams struct {
	RandID       string
	BaseURL      string
	LocalAddress string
}

// NewRandID returns a fresh identity token.
func NewRandID() string {
	b := make([]byte, idLength)
	for i := range b {
		b[i] = idAlphabet[rand.IntN(len(idAlphabet))]
	}
	return string(b)
}

// ValidRandID reports whether s has the shape of an identity token.
func ValidRandID(s string) bool {
	if len(s) != idLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !containsByte(idAlphabet, s[i]) {
			return false
		}
	}
	return true
}

func containsByte(s string, b byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return true
		}
	}
	return false
}

// pickOne returns a uniformly chosen element, or "" for an empty pool.
func pickOne(pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	return pool[rand.IntN(len(pool))]
}

// drawParams picks parameters for a new attempt.
func (c *Client) drawParams() ConnectionParams {
	base := c.opts.BaseURL
	if base == "" {
		base = fmt.Sprintf("http://%s", pickOne(c.opts.Servers))
	}
	return ConnectionParams{
		RandID:       NewRandID(),
		BaseURL:      base,
		LocalAddress: pickOne(c.opts.LocalAddresses),
	}
}
