package bridge

import (
	"errors"
	"fmt"

	"hudbridge.ai/internal/protocol"
	"hudbridge.ai/internal/surface"
)

type Config struct {
	SyncRateHz         int
	SnapshotEveryTicks int
	// MaxSurfaces caps private surfaces; 0 keeps the terminal's default.
	MaxSurfaces int
}

// JoinRequest registers a session. Out receives encoded messages and is closed
// by the runtime when the session ends.
type JoinRequest struct {
	ClientName string
	Role       string
	Surface    string
	Out        chan []byte
	Resp       chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
	Err     error
}

type ActEnvelope struct {
	SessionID string
	Act       protocol.ActMsg
}

type SyncLogger interface {
	WriteSync(entry SyncLogEntry) error
}

type ActLogger interface {
	WriteAct(entry ActLogEntry) error
}

// SyncLogEntry summarises one non-empty sync batch.
type SyncLogEntry struct {
	Tick    uint64 `json:"tick"`
	Surface string `json:"surface"`
	Clear   bool   `json:"clear,omitempty"`
	Full    int    `json:"full"`
	Partial int    `json:"partial"`
	Removed int    `json:"removed"`
	Viewers int    `json:"viewers"`
	Bytes   int    `json:"bytes"`
}

// ActLogEntry records one op and its outcome.
type ActLogEntry struct {
	Tick      uint64            `json:"tick"`
	SessionID string            `json:"session_id"`
	Op        protocol.OpReq    `json:"op"`
	Result    protocol.OpResult `json:"result"`
}

// OpError is an op-layer rejection with its wire code.
type OpError struct {
	Code    string
	Message string
}

func (e *OpError) Error() string { return e.Code + ": " + e.Message }

func opErrorf(code, format string, args ...any) error {
	return &OpError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeFor extends protocol.CodeFor with op-layer errors.
func CodeFor(err error) string {
	var oe *OpError
	switch {
	case errors.As(err, &oe):
		return oe.Code
	case errors.Is(err, surface.ErrNotFound):
		return protocol.ErrNotFound
	}
	return protocol.CodeFor(err)
}
