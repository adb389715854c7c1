// Package protocol defines the JSON frames exchanged between clients and the
// signaling server.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/teamvoice/internal/domain"
)

type MessageType string

const (
	// client -> server
	TypeJoin        MessageType = "join"
	TypeLeave       MessageType = "leave"
	TypeMuteChanged MessageType = "muteChanged"
	TypePing        MessageType = "ping"

	// both directions; fields differ
	TypeSignal MessageType = "signal"

	// server -> client
	TypeWelcome      MessageType = "welcome"
	TypeRosterUpdate MessageType = "rosterUpdate"
	TypeMemberJoined MessageType = "memberJoined"
	TypeMemberLeft   MessageType = "memberLeft"
	TypePong         MessageType = "pong"
	TypeError        MessageType = "error"
)

var ErrMissingType = errors.New("message without type")

type Join struct {
	Type        MessageType   `json:"type"`
	RoomID      domain.RoomID `json:"roomId"`
	DisplayName string        `json:"displayName"`
}

type Leave struct {
	Type   MessageType   `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
}

type MuteChanged struct {
	Type   MessageType   `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
	Muted  bool          `json:"muted"`
}

// SignalRequest is what a client sends to reach one remote.
type SignalRequest struct {
	Type               MessageType         `json:"type"`
	RoomID             domain.RoomID       `json:"roomId"`
	TargetConnectionID domain.ConnectionID `json:"targetConnectionId"`
	Payload            json.RawMessage     `json:"payload"`
}

// SignalDelivery is a relayed SignalRequest, tagged with its sender.
type SignalDelivery struct {
	Type               MessageType         `json:"type"`
	RoomID             domain.RoomID       `json:"roomId"`
	SenderConnectionID domain.ConnectionID `json:"senderConnectionId"`
	Payload            json.RawMessage     `json:"payload"`
}

type Welcome struct {
	Type         MessageType         `json:"type"`
	ConnectionID domain.ConnectionID `json:"connectionId"`
}

type RosterUpdate struct {
	Type         MessageType          `json:"type"`
	RoomID       domain.RoomID        `json:"roomId"`
	Participants []domain.Participant `json:"participants"`
}

// MemberEvent carries memberJoined and memberLeft.
type MemberEvent struct {
	Type         MessageType         `json:"type"`
	RoomID       domain.RoomID       `json:"roomId"`
	ConnectionID domain.ConnectionID `json:"connectionId"`
}

type Control struct {
	Type MessageType `json:"type"`
}

type Error struct {
	Type  MessageType `json:"type"`
	Error string      `json:"error"`
}

func NewRosterUpdate(room domain.RoomID, participants []domain.Participant) RosterUpdate {
	if participants == nil {
		participants = []domain.Participant{}
	}
	return RosterUpdate{Type: TypeRosterUpdate, RoomID: room, Participants: participants}
}

func NewMemberJoined(room domain.RoomID, id domain.ConnectionID) MemberEvent {
	return MemberEvent{Type: TypeMemberJoined, RoomID: room, ConnectionID: id}
}

func NewMemberLeft(room domain.RoomID, id domain.ConnectionID) MemberEvent {
	return MemberEvent{Type: TypeMemberLeft, RoomID: room, ConnectionID: id}
}

func NewError(reason string) Error {
	return Error{Type: TypeError, Error: reason}
}

// PeekType reads only the discriminator of a frame.
func PeekType(data []byte) (MessageType, error) {
	var env struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return "", ErrMissingType
	}
	return env.Type, nil
}

// Decode unmarshals a frame whose type has already been peeked.
func Decode[T any](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode %T: %w", v, err)
	}
	return v, nil
}

func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return b, nil
}
