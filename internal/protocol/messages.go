package protocol

import "encoding/json"

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	Role            string `json:"role"`
	// Surface selects what a viewer watches: GLOBAL or a player name.
	Surface  string `json:"surface,omitempty"`
	MaxQueue int    `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	SessionID       string        `json:"session_id"`
	TerminalID      string        `json:"terminal_id"`
	Surface         string        `json:"surface,omitempty"`
	SyncRateHz      int           `json:"sync_rate_hz"`
	Kinds           []KindCatalog `json:"kinds"`
}

// KindCatalog describes one registered kind: its tag and field layout.
type KindCatalog struct {
	Kind   string         `json:"kind"`
	Tag    int            `json:"tag"`
	Fields []FieldCatalog `json:"fields"`
}

type FieldCatalog struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Default any    `json:"default"`
}

// SYNC (server -> client)
//
// Clear drops every drawable the client holds for the surface and is applied
// first. Full entries replace (or create) whole instances, Partial entries patch
// one field of an instance the client already has, Removed entries delete.
type SyncMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Tick            uint64          `json:"tick"`
	Surface         string          `json:"surface"`
	Clear           bool            `json:"clear,omitempty"`
	Full            []FullUpdate    `json:"full,omitempty"`
	Partial         []PartialUpdate `json:"partial,omitempty"`
	Removed         []uint32        `json:"removed,omitempty"`
}

type FullUpdate struct {
	ID     uint32            `json:"id"`
	Tag    int               `json:"tag"`
	Values []json.RawMessage `json:"values"`
}

type PartialUpdate struct {
	ID    uint32          `json:"id"`
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// ACT (producer -> server)
type ActMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Ops             []OpReq `json:"ops"`
}

// Op names.
const (
	OpAdd    = "ADD"
	OpSet    = "SET"
	OpRemove = "REMOVE"
	OpClear  = "CLEAR"
)

type OpReq struct {
	ID      string                     `json:"id"`
	Op      string                     `json:"op"`
	Surface string                     `json:"surface,omitempty"`
	Kind    string                     `json:"kind,omitempty"`
	Target  uint32                     `json:"target,omitempty"`
	Fields  map[string]json.RawMessage `json:"fields,omitempty"`
}

// ACT_RESULT (server -> producer)
type ActResultMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Tick            uint64     `json:"tick"`
	Results         []OpResult `json:"results"`
}

type OpResult struct {
	ID      string `json:"id"`
	OK      bool   `json:"ok"`
	Target  uint32 `json:"target,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ERROR (server -> client), sent before closing on a protocol violation.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
