package packet

import (
	"time"

	"github.com/google/uuid"
)

// Detection kinds emitted by the vision client.
const (
	PhoneDetected = "PHONE_DETECTED"
	Sleeping      = "SLEEPING"
	Absent        = "ABSENT"
	GazeAway      = "GAZE_AWAY"
)

// Control kinds sent by the client's control plane.
const (
	PersonalityUpdate = "PERSONALITY_UPDATE"
	SessionStart      = "SESSION_START"
)

// DetectionKinds is the default set of kinds routed through the cooldown gate.
var DetectionKinds = []string{PhoneDetected, Sleeping, Absent, GazeAway}

// Packet is the canonical message exchanged between the detector and the agent.
type Packet struct {
	ID        string         `json:"id,omitempty"`
	Event     string         `json:"event"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"` // zero when the sender omitted it
}

// New builds a packet stamped with a fresh ID and the current time.
func New(event string, data map[string]any) *Packet {
	if data == nil {
		data = make(map[string]any)
	}
	return &Packet{
		ID:        uuid.New().String(),
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// IsControl reports whether event is a control kind rather than a detection.
func IsControl(event string) bool {
	return event == PersonalityUpdate || event == SessionStart
}

