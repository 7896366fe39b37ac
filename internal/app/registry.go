package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"peercall/internal/core"
	"peercall/internal/domain"
)

// Registry owns the identifier -> connection mapping. At most one live
// connection per normalized identifier; a newer registration evicts the
// previous owner.
type Registry struct {
	mu    sync.Mutex
	peers map[domain.PeerID]core.SignalConnection
}

func NewRegistry() *Registry {
	return &Registry{peers: make(map[domain.PeerID]core.SignalConnection)}
}

// Register installs conn as the owner of raw's normalized form and returns
// that form. An existing owner is closed before the install; the evicted
// connection's own asynchronous release is a no-op thanks to the identity
// check in Release. Eviction errors are ignored: the old owner is gone
// either way.
func (r *Registry) Register(raw string, conn core.SignalConnection) (domain.PeerID, error) {
	id, err := domain.NormalizePeerID(raw)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.peers[id]; ok && prev != conn {
		log.Info().Str("module", "app.registry").Str("peer", string(id)).Msg("evicting previous owner")
		prev.Close()
	}
	r.peers[id] = conn
	log.Info().Str("module", "app.registry").Str("peer", string(id)).Int("total", len(r.peers)).Msg("registered")
	return id, nil
}

// Resolve returns the connection currently bound to raw's normalized form.
// Absence is an expected outcome ("offline"), not an error.
func (r *Registry) Resolve(raw string) (core.SignalConnection, bool) {
	id, err := domain.NormalizePeerID(raw)
	if err != nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.peers[id]
	return conn, ok
}

// Release removes the binding only while conn is still the current owner,
// so a late close from an already-evicted connection cannot unbind its
// successor.
func (r *Registry) Release(id domain.PeerID, conn core.SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.peers[id]; ok && cur == conn {
		delete(r.peers, id)
		log.Info().Str("module", "app.registry").Str("peer", string(id)).Int("total", len(r.peers)).Msg("released")
	}
}

// Count reports how many identifiers are currently bound.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}
