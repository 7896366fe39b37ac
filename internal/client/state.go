package client

// CallState is the endpoint-local call automaton. The relay forwards
// transitions but never enforces ordering, so unexpected events must be
// ignored here rather than executed.
type CallState int

const (
	StateUnregistered CallState = iota
	StateRegistered
	StateCalling
	StateRinging
	StateInCall
)

func (s CallState) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	case StateCalling:
		return "calling"
	case StateRinging:
		return "ringing"
	case StateInCall:
		return "in-call"
	default:
		return "unknown"
	}
}

// Event is either a local user action or an inbound relay message.
type Event int

const (
	EventRegistered   Event = iota // relay confirmed our registration
	EventDial                      // local user places a call
	EventIncomingCall              // remote invite arrived
	EventAccept                    // local user accepts the ringing call
	EventReject                    // local user rejects the ringing call
	EventRemoteAccept              // remote accepted our call
	EventRemoteReject              // remote rejected, or the call failed
	EventOffer                     // session description arrived
	EventAnswer                    // answer to our offer arrived
	EventHangup                    // local teardown or negotiation failure
)

func (e Event) String() string {
	switch e {
	case EventRegistered:
		return "registered"
	case EventDial:
		return "dial"
	case EventIncomingCall:
		return "incoming-call"
	case EventAccept:
		return "accept"
	case EventReject:
		return "reject"
	case EventRemoteAccept:
		return "remote-accept"
	case EventRemoteReject:
		return "remote-reject"
	case EventOffer:
		return "offer"
	case EventAnswer:
		return "answer"
	case EventHangup:
		return "hangup"
	default:
		return "unknown"
	}
}

// Transition returns the state that follows ev from s. ok is false when the
// protocol does not allow ev in s; callers must drop such events instead of
// executing their side effects.
func Transition(s CallState, ev Event) (next CallState, ok bool) {
	switch s {
	case StateUnregistered:
		if ev == EventRegistered {
			return StateRegistered, true
		}
	case StateRegistered:
		switch ev {
		case EventDial:
			return StateCalling, true
		case EventIncomingCall:
			return StateRinging, true
		case EventOffer:
			// Glare or a late accept: the remote answered an exchange our
			// UI no longer shows. Joining the call is the original behavior.
			return StateInCall, true
		}
	case StateCalling:
		switch ev {
		case EventRemoteAccept:
			// Negotiation starts now; we stay "calling" until the answer.
			return StateCalling, true
		case EventAnswer:
			return StateInCall, true
		case EventRemoteReject, EventHangup:
			return StateRegistered, true
		}
	case StateRinging:
		switch ev {
		case EventAccept:
			// Accepted; the caller's offer moves us to in-call.
			return StateRinging, true
		case EventOffer:
			return StateInCall, true
		case EventReject, EventHangup:
			return StateRegistered, true
		}
	case StateInCall:
		if ev == EventHangup {
			return StateRegistered, true
		}
	}
	return s, false
}
