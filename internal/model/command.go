// internal/model/command.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// CommandType represents an inward engine command.
type CommandType string

const (
	CommandStart      CommandType = "START"
	CommandStop       CommandType = "STOP"
	CommandScan       CommandType = "SCAN"
	CommandClearCodes CommandType = "CLEAR_CODES"
	CommandSetDebug   CommandType = "SET_DEBUG"
)

// ClearCodesConfirmToken is the confirmation token a caller must attach to a
// CLEAR_CODES command. Commands without it are rejected at the queue boundary
// and never reach the bus.
const ClearCodesConfirmToken = "CONFIRM-CLEAR-CODES"

// EngineCommand is a small value message placed on the engine's inward queue.
// Commands are executed synchronously inside the engine loop, never from the
// caller's goroutine.
type EngineCommand struct {
	ID           uuid.UUID   `json:"id"`
	Type         CommandType `json:"type"`
	ConfirmToken string      `json:"confirm_token,omitempty"`
	Debug        bool        `json:"debug,omitempty"`
	IssuedAt     time.Time   `json:"issued_at"`
}

// NewCommand builds a command of the given type with a fresh ID.
func NewCommand(t CommandType) EngineCommand {
	return EngineCommand{
		ID:       uuid.New(),
		Type:     t,
		IssuedAt: time.Now(),
	}
}
