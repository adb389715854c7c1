// Package domain holds the participant model shared by server and client,
// plus the field checks both sides apply.
package domain

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const MaxDisplayNameLen = 36

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
	ErrRoomIDEmpty        = errors.New("room id empty")
	ErrAlreadyJoined      = errors.New("connection already joined room")
)

// ConnectionID is assigned by the transport on connect. It is opaque and
// never reused across reconnects.
type ConnectionID string

// RoomID is chosen by clients. Case-sensitive, never normalized.
type RoomID string

type Participant struct {
	ConnectionID ConnectionID `json:"connectionId"`
	DisplayName  string       `json:"displayName"`
	Muted        bool         `json:"muted"`
}

// NewParticipant builds an unmuted participant. Only a blank name is
// refused; the server accepts names of any length.
func NewParticipant(id ConnectionID, displayName string) (Participant, error) {
	if err := ValidateDisplayName(displayName); err != nil {
		return Participant{}, err
	}
	return Participant{ConnectionID: id, DisplayName: displayName}, nil
}

func ValidateDisplayName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrDisplayNameEmpty
	}
	return nil
}

// ValidateLocalDisplayName is the stricter check the client applies before
// joining: non-blank and at most MaxDisplayNameLen runes.
func ValidateLocalDisplayName(name string) error {
	if err := ValidateDisplayName(name); err != nil {
		return err
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	return nil
}

func ValidateRoomID(id RoomID) error {
	if id == "" {
		return ErrRoomIDEmpty
	}
	return nil
}
