// Package protocol defines the signaling envelope vocabulary shared by the
// relay and the endpoint runtime. Envelopes are plain JSON objects keyed by
// "type"; offer/answer/ice payloads are opaque to the relay and pass through
// verbatim.
package protocol

const (
	TypeRegister     = "register"
	TypeRegistered   = "registered"
	TypeCall         = "call"
	TypeIncomingCall = "incoming-call"
	TypeCallFailed   = "call-failed"
	TypeCallAccept   = "call-accept"
	TypeCallReject   = "call-reject"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICE          = "ice"
	TypeError        = "error"
)

// Error reasons surfaced to the offending sender.
const (
	ReasonBadJSON           = "bad json"
	ReasonUserIDRequired    = "userId required"
	ReasonNotRegistered     = "not registered"
	ReasonUnknownType       = "unknown type"
	ReasonAlreadyRegistered = "already registered"
	ReasonCalleeOffline     = "callee offline"
)

type Registered struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type IncomingCall struct {
	Type string `json:"type"`
	From string `json:"from"`
}

type CallFailed struct {
	Type   string `json:"type"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// PeerSignal is the forwarded form of call-accept and call-reject: the
// recipient learns only who the signal came from.
type PeerSignal struct {
	Type string `json:"type"`
	From string `json:"from"`
}

type ErrorReply struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}
