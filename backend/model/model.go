package model

import "encoding/json"

// Message types emitted by the server itself. Every other type is
// relayed between participants without inspection.
const (
	MessageTypeWelcome = "welcome"
	MessageTypeJoin    = "join"
	MessageTypeLeave   = "leave"
)

// Message is a single signaling frame. Payload stays raw so the relay
// never has to understand offers, answers or ICE candidates.
type Message struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	SenderID string          `json:"senderId,omitempty"` // for inbound messages server re-assigns this based on websocket connection
	TargetID string          `json:"targetId,omitempty"`
}

// JoinPayload is the only payload the server looks into. Role is opaque
// to the relay, clients use it to decide who initiates negotiation.
type JoinPayload struct {
	SessionID string `json:"sessionId"`
	Role      string `json:"role,omitempty"`
}

type WelcomePayload struct {
	ClientID string `json:"clientId"`
}

// NewWelcome builds the frame sent to a client right after connect.
func NewWelcome(clientID string) Message {
	b, _ := json.Marshal(WelcomePayload{ClientID: clientID})
	return Message{
		Type:    MessageTypeWelcome,
		Payload: b,
	}
}

type Wire struct {
	RX chan Message
	TX chan Message
}

func NewWire() Wire {
	return Wire{
		RX: make(chan Message),
		TX: make(chan Message),
	}
}

// Participant is one connected client bound into a session. Its wire is
// owned by the connection's handler; others only push to TX.
type Participant struct {
	ID   string `json:"id"`
	Wire Wire   `json:"-"`
}
