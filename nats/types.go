package nats

import (
	"voyager.com/tiltengine/personality"
)

type TickMessage struct {
	HandNumber uint32 `json:"hand_number"`
}

type JoinMessage struct {
	PlayerName string `json:"player_name"`
	Character  string `json:"character"`
}

type LeaveMessage struct {
	PlayerName string `json:"player_name"`
}

// Response is sent back when a request carries a reply subject.
type Response struct {
	Status string                        `json:"status"`
	Error  string                        `json:"error,omitempty"`
	Views  []personality.PersonalityView `json:"views,omitempty"`
}

const (
	StatusOk       = "OK"
	StatusDegraded = "DEGRADED"
	StatusFailed   = "FAILED"
)
