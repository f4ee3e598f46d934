package model

import (
	"fmt"
	"time"
)

// Direction tells whether a message was sent by the guest or the host.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// MessageType distinguishes automated messages from ones typed by a human.
type MessageType string

const (
	MessageTypeAutomated MessageType = "automated"
	MessageTypeManual    MessageType = "manual"
)

type Property struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Guest struct {
	Name        string  `json:"name"`
	Email       *string `json:"email,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Nationality *string `json:"nationality,omitempty"`
}

type Reservation struct {
	ID string `json:"id"`
	// Price is deliberately a float: the upstream decimal is flattened
	// before storage so no arbitrary-precision type leaks into the wire
	// format.
	Price *float64 `json:"price,omitempty"`
}

// Message is the canonical persisted form of one guest/host conversation
// record. It is built once per raw upstream record and never mutated
// afterwards; re-running the pipeline over the same record overwrites the
// stored copy keyed by MessageID.
type Message struct {
	MessageID   string       `json:"message_id"`
	Property    Property     `json:"property"`
	Guest       Guest        `json:"guest"`
	Content     string       `json:"content"`
	Timestamp   time.Time    `json:"timestamp"`
	Direction   Direction    `json:"direction"`
	Reservation *Reservation `json:"reservation,omitempty"`
	MessageType MessageType  `json:"message_type"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// ValidationError marks a canonical field that violated its shape or enum
// constraint. It is returned from Validate rather than raised mid
// construction, so the pipeline can count the record and move on.
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Field, e.Value)
}

// Validate applies the construction-time checks: non-empty key, two-valued
// enums, and a reservation that is either fully present or absent.
func (m *Message) Validate() error {
	if m.MessageID == "" {
		return &ValidationError{Field: "message_id", Value: ""}
	}
	switch m.Direction {
	case DirectionIncoming, DirectionOutgoing:
	default:
		return &ValidationError{Field: "direction", Value: string(m.Direction)}
	}
	switch m.MessageType {
	case MessageTypeAutomated, MessageTypeManual:
	default:
		return &ValidationError{Field: "message_type", Value: string(m.MessageType)}
	}
	if m.Reservation != nil && m.Reservation.ID == "" {
		return &ValidationError{Field: "reservation.id", Value: ""}
	}
	return nil
}

// MessageFilter controls read-API List queries.
type MessageFilter struct {
	Skip  int
	Limit int // default 10, capped at 100
}
