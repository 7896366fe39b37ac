package app

import (
	"peercall/internal/core"
	"peercall/internal/domain"
)

// Session is the router-facing view of one connection: the transport plus
// its at-most-one identifier binding. The binding is immutable once set.
//
// A Session is only touched from its connection's read goroutine, so no
// locking is needed here.
type Session struct {
	Conn core.SignalConnection

	peer  domain.PeerID
	bound bool
}

func NewSession(conn core.SignalConnection) *Session {
	return &Session{Conn: conn}
}

// Peer returns the bound identifier, if any.
func (s *Session) Peer() (domain.PeerID, bool) {
	return s.peer, s.bound
}

func (s *Session) bind(id domain.PeerID) {
	s.peer = id
	s.bound = true
}
