package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"peercall/internal/core"
	"peercall/internal/domain"
	"peercall/internal/protocol"
)

// Router validates inbound envelopes and dispatches them by type. It is
// stateless with respect to call progress: every envelope names its own
// recipient and the router never records who is talking to whom.
type Router struct {
	Registry *Registry
}

func NewRouter(reg *Registry) *Router {
	return &Router{Registry: reg}
}

// HandleFrame processes one inbound frame from sess. Errors are reported
// only to the sender; a malformed frame never affects other connections or
// registry state.
func (rt *Router) HandleFrame(sess *Session, data core.Frame) {
	var env map[string]any
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "app.router").Msg("bad json")
		rt.reply(sess, protocol.ErrorReply{Type: protocol.TypeError, Reason: protocol.ReasonBadJSON})
		return
	}
	typ, _ := env["type"].(string)

	if typ == protocol.TypeRegister {
		rt.handleRegister(sess, env)
		return
	}

	from, ok := sess.Peer()
	if !ok {
		rt.reply(sess, protocol.ErrorReply{Type: protocol.TypeError, Reason: protocol.ReasonNotRegistered})
		return
	}

	switch typ {
	case protocol.TypeCall:
		rt.handleCall(sess, from, env)
	case protocol.TypeCallAccept, protocol.TypeCallReject:
		to, _ := env["to"].(string)
		// Best-effort: these answer an exchange the recipient started, so
		// an absent recipient is swallowed, not reported.
		rt.deliver(to, protocol.PeerSignal{Type: typ, From: string(from)})
	case protocol.TypeOffer, protocol.TypeAnswer, protocol.TypeICE:
		rt.forward(from, env)
	default:
		log.Warn().Str("module", "app.router").Str("type", typ).Msg("unknown envelope type")
		rt.reply(sess, protocol.ErrorReply{Type: protocol.TypeError, Reason: protocol.ReasonUnknownType})
	}
}

func (rt *Router) handleRegister(sess *Session, env map[string]any) {
	raw, _ := env["userId"].(string)

	if bound, already := sess.Peer(); already {
		// The binding is immutable. Announcing the same identifier again is
		// a no-op; asking for a different one is refused.
		if id, err := domain.NormalizePeerID(raw); err == nil && id == bound {
			rt.reply(sess, protocol.Registered{Type: protocol.TypeRegistered, UserID: string(bound)})
			return
		}
		rt.reply(sess, protocol.ErrorReply{Type: protocol.TypeError, Reason: protocol.ReasonAlreadyRegistered})
		return
	}

	id, err := rt.Registry.Register(raw, sess.Conn)
	if err != nil {
		rt.reply(sess, protocol.ErrorReply{Type: protocol.TypeError, Reason: protocol.ReasonUserIDRequired})
		return
	}
	sess.bind(id)
	rt.reply(sess, protocol.Registered{Type: protocol.TypeRegistered, UserID: string(id)})
}

// handleCall is the one forward that reports failure back to the caller:
// the callee can never learn of an invite it never received.
func (rt *Router) handleCall(sess *Session, from domain.PeerID, env map[string]any) {
	to, _ := env["to"].(string)
	if rt.deliver(to, protocol.IncomingCall{Type: protocol.TypeIncomingCall, From: string(from)}) {
		return
	}
	rt.reply(sess, protocol.CallFailed{Type: protocol.TypeCallFailed, To: to, Reason: protocol.ReasonCalleeOffline})
}

// forward relays an opaque negotiation envelope verbatim, minus "to", with
// "from" overwritten to the sender's bound identifier. A client-supplied
// "from" is never trusted.
func (rt *Router) forward(from domain.PeerID, env map[string]any) {
	to, _ := env["to"].(string)
	delete(env, "to")
	env["from"] = string(from)
	rt.deliver(to, env)
}

// deliver resolves to and queues v on the recipient's connection without
// blocking. A closed or backpressured recipient counts as absent.
func (rt *Router) deliver(to string, v any) bool {
	conn, ok := rt.Registry.Resolve(to)
	if !ok {
		return false
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Msg("deliver marshal")
		return false
	}
	if err := conn.TrySend(b); err != nil {
		log.Debug().Err(err).Str("module", "app.router").Str("to", to).Msg("deliver dropped")
		return false
	}
	return true
}

func (rt *Router) reply(sess *Session, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Msg("reply marshal")
		return
	}
	_ = sess.Conn.TrySend(b)
}
