// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const MaxPeerIDLen = 64

var (
	ErrPeerIDEmpty   = errors.New("peer id empty")
	ErrPeerIDTooLong = errors.New("peer id too long")
)

// PeerID is a normalized endpoint identifier. Always obtained through
// NormalizePeerID; raw client input must never be used as a map key.
type PeerID string

// NormalizePeerID trims and case-folds a client-chosen identifier.
func NormalizePeerID(raw string) (PeerID, error) {
	id := strings.ToLower(strings.TrimSpace(raw))
	if id == "" {
		return "", ErrPeerIDEmpty
	}
	if len(id) > MaxPeerIDLen {
		return "", ErrPeerIDTooLong
	}
	return PeerID(id), nil
}
