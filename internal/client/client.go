// Package client is the endpoint runtime: it speaks the relay's envelope
// protocol over a websocket, drives the local call state machine, and owns
// the media engine for the current call leg.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"peercall/internal/adapters/rtc"
	"peercall/internal/protocol"
)

var ErrBadState = errors.New("action not allowed in current state")

type Options struct {
	Prober      DeviceProber
	STUNServers []string
	// LocalTracks are attached to every call leg. When empty the endpoint
	// negotiates receive-only audio and video.
	LocalTracks []*webrtc.TrackLocalStaticRTP
}

type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	opts    Options

	mu     sync.Mutex
	state  CallState
	remote string
	media  *rtc.MediaConnection

	OnRegistered   func(userID string)
	OnIncomingCall func(from string)
	OnCallFailed   func(to, reason string)
	OnCallEnded    func()
	OnStateChange  func(from, to CallState)
	OnError        func(reason string)
}

// envelope is the superset of every relay-to-client message. offer, answer
// and candidate carry the original field names of the wire protocol.
type envelope struct {
	Type      string                     `json:"type"`
	From      string                     `json:"from"`
	To        string                     `json:"to"`
	Reason    string                     `json:"reason"`
	UserID    string                     `json:"userId"`
	Offer     *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer    *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	if opts.Prober == nil {
		opts.Prober = NoDevices{}
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "client").Str("url", url).Msg("connected to relay")
	return &Client{conn: conn, opts: opts, state: StateUnregistered}, nil
}

// Run reads and dispatches relay messages until the connection or ctx ends.
func (c *Client) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.conn.Close()
		case <-done:
		}
	}()
	defer c.closeMedia()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		c.handle(ctx, data)
	}
}

func (c *Client) Close() error {
	c.closeMedia()
	return c.conn.Close()
}

func (c *Client) State() CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Register announces our identifier. The state advances when the relay
// confirms with a registered envelope.
func (c *Client) Register(userID string) error {
	return c.send(map[string]any{"type": protocol.TypeRegister, "userId": userID})
}

func (c *Client) Call(to string) error {
	if !c.step(EventDial) {
		return ErrBadState
	}
	c.mu.Lock()
	c.remote = to
	c.mu.Unlock()
	return c.send(map[string]any{"type": protocol.TypeCall, "to": to})
}

func (c *Client) Accept() error {
	c.mu.Lock()
	remote := c.remote
	c.mu.Unlock()
	if remote == "" || !c.step(EventAccept) {
		return ErrBadState
	}
	return c.send(map[string]any{"type": protocol.TypeCallAccept, "to": remote})
}

func (c *Client) Reject() error {
	c.mu.Lock()
	remote := c.remote
	c.mu.Unlock()
	if remote == "" || !c.step(EventReject) {
		return ErrBadState
	}
	c.closeMedia()
	return c.send(map[string]any{"type": protocol.TypeCallReject, "to": remote})
}

// Hangup tears the call down locally. The remote side is not signaled; it
// learns of the teardown through its own media layer.
func (c *Client) Hangup() {
	if c.step(EventHangup) {
		c.closeMedia()
	}
}

// step applies ev to the automaton. Events the protocol does not allow in
// the current state are logged and dropped, never executed.
func (c *Client) step(ev Event) bool {
	c.mu.Lock()
	from := c.state
	next, ok := Transition(from, ev)
	if ok {
		c.state = next
	}
	c.mu.Unlock()
	if !ok {
		log.Warn().Str("module", "client").Str("state", from.String()).Str("event", ev.String()).Msg("event not valid in state, ignoring")
		return false
	}
	if next != from && c.OnStateChange != nil {
		c.OnStateChange(from, next)
	}
	return true
}

func (c *Client) handle(ctx context.Context, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad envelope from relay")
		return
	}
	switch env.Type {
	case protocol.TypeRegistered:
		c.onRegistered(env)
	case protocol.TypeIncomingCall:
		c.onIncomingCall(env)
	case protocol.TypeCallFailed:
		c.onCallFailed(env)
	case protocol.TypeCallAccept:
		c.onRemoteAccept(ctx, env)
	case protocol.TypeCallReject:
		c.onRemoteReject(env)
	case protocol.TypeOffer:
		c.onOffer(ctx, env)
	case protocol.TypeAnswer:
		c.onAnswer(env)
	case protocol.TypeICE:
		c.onCandidate(env)
	case protocol.TypeError:
		log.Warn().Str("module", "client").Str("reason", env.Reason).Msg("relay error")
		if c.OnError != nil {
			c.OnError(env.Reason)
		}
	default:
		log.Warn().Str("module", "client").Str("type", env.Type).Msg("unknown envelope from relay")
	}
}

func (c *Client) onRegistered(env envelope) {
	if !c.step(EventRegistered) {
		return
	}
	log.Info().Str("module", "client").Str("user", env.UserID).Msg("registered")
	if c.OnRegistered != nil {
		c.OnRegistered(env.UserID)
	}
}

func (c *Client) onIncomingCall(env envelope) {
	if !c.step(EventIncomingCall) {
		return
	}
	c.mu.Lock()
	c.remote = env.From
	c.mu.Unlock()
	if c.OnIncomingCall != nil {
		c.OnIncomingCall(env.From)
	}
}

func (c *Client) onCallFailed(env envelope) {
	if !c.step(EventRemoteReject) {
		return
	}
	c.closeMedia()
	log.Info().Str("module", "client").Str("to", env.To).Str("reason", env.Reason).Msg("call failed")
	if c.OnCallFailed != nil {
		c.OnCallFailed(env.To, env.Reason)
	}
}

// onRemoteAccept runs on the caller: the callee accepted, so negotiation
// starts here with our offer.
func (c *Client) onRemoteAccept(ctx context.Context, env envelope) {
	if !c.step(EventRemoteAccept) {
		return
	}
	c.mu.Lock()
	c.remote = env.From
	c.mu.Unlock()

	m, err := c.ensureMedia(ctx, env.From)
	if err != nil {
		log.Error().Err(err).Str("module", "client").Msg("media setup")
		c.fail()
		return
	}
	offer, err := m.CreateOffer()
	if err != nil {
		log.Error().Err(err).Str("module", "client").Msg("create offer")
		c.fail()
		return
	}
	_ = c.send(map[string]any{"type": protocol.TypeOffer, "to": env.From, "offer": offer})
}

func (c *Client) onRemoteReject(env envelope) {
	if !c.step(EventRemoteReject) {
		return
	}
	c.closeMedia()
	if c.OnCallEnded != nil {
		c.OnCallEnded()
	}
}

// onOffer runs on the callee: apply the caller's description and answer.
func (c *Client) onOffer(ctx context.Context, env envelope) {
	if env.Offer == nil {
		log.Warn().Str("module", "client").Msg("offer envelope without description")
		return
	}
	if !c.step(EventOffer) {
		return
	}
	c.mu.Lock()
	c.remote = env.From
	c.mu.Unlock()

	m, err := c.ensureMedia(ctx, env.From)
	if err != nil {
		log.Error().Err(err).Str("module", "client").Msg("media setup")
		c.fail()
		return
	}
	answer, err := m.ApplyOfferAndCreateAnswer(*env.Offer)
	if err != nil {
		log.Error().Err(err).Str("module", "client").Msg("apply offer")
		c.fail()
		return
	}
	_ = c.send(map[string]any{"type": protocol.TypeAnswer, "to": env.From, "answer": answer})
}

func (c *Client) onAnswer(env envelope) {
	if env.Answer == nil {
		return
	}
	if !c.step(EventAnswer) {
		return
	}
	c.mu.Lock()
	m := c.media
	c.mu.Unlock()
	if m == nil {
		return
	}
	if err := m.ApplyAnswer(*env.Answer); err != nil {
		log.Error().Err(err).Str("module", "client").Msg("apply answer")
		c.fail()
	}
}

func (c *Client) onCandidate(env envelope) {
	if env.Candidate == nil {
		return
	}
	c.mu.Lock()
	m := c.media
	c.mu.Unlock()
	if m == nil {
		log.Debug().Str("module", "client").Msg("candidate without media connection")
		return
	}
	if err := m.AddICECandidate(*env.Candidate); err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("add ice candidate")
	}
}

func (c *Client) ensureMedia(ctx context.Context, peer string) (*rtc.MediaConnection, error) {
	c.mu.Lock()
	if c.media != nil {
		m := c.media
		c.mu.Unlock()
		return m, nil
	}
	c.mu.Unlock()

	m, err := rtc.NewMediaConnection(rtc.Config(c.opts.STUNServers), peer)
	if err != nil {
		return nil, err
	}
	m.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		_ = c.send(map[string]any{"type": protocol.TypeICE, "to": peer, "candidate": ci})
	})
	m.OnClosed(func() { c.mediaFailed() })
	if err := m.Start(ctx); err != nil {
		m.Close()
		return nil, err
	}

	if len(c.opts.LocalTracks) == 0 {
		if !c.opts.Prober.HasAudio() && !c.opts.Prober.HasVideo() {
			log.Info().Str("module", "client").Msg("no capture devices, receive-only")
		}
		if err := m.AddRecvOnlyTransceivers(); err != nil {
			m.Close()
			return nil, err
		}
	} else {
		for _, t := range c.opts.LocalTracks {
			if _, err := m.AddLocalTrack(t); err != nil {
				m.Close()
				return nil, err
			}
		}
	}

	c.mu.Lock()
	c.media = m
	c.mu.Unlock()
	return m, nil
}

// mediaFailed handles transport-level loss of the peer connection.
func (c *Client) mediaFailed() {
	c.mu.Lock()
	had := c.media != nil
	c.mu.Unlock()
	if !had {
		return
	}
	c.fail()
}

// fail returns the endpoint to registered without notifying the remote
// side; it detects the failure through its own media layer.
func (c *Client) fail() {
	c.step(EventHangup)
	c.closeMedia()
	if c.OnCallEnded != nil {
		c.OnCallEnded()
	}
}

func (c *Client) closeMedia() {
	c.mu.Lock()
	m := c.media
	c.media = nil
	c.remote = ""
	c.mu.Unlock()
	if m != nil {
		m.Close()
	}
}

func (c *Client) send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}
