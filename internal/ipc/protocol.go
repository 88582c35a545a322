// Package ipc provides the control channel between the duckhunt daemon
// and its clients (CLI, tray UI). Transport is a same-user unix socket
// (named pipe on Windows) carrying length-prefixed frames: a fixed
// 16-byte header followed by a JSON payload.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/qb20nh/duckhunt/internal/config"
	"github.com/qb20nh/duckhunt/internal/pipeline"
	"github.com/qb20nh/duckhunt/internal/store"
)

// Protocol version for compatibility checking
const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x44484950 // "DHIP" - Duckhunt IPC
)

// MessageType identifies the type of IPC message
type MessageType uint16

const (
	// Control messages (0x00xx)
	MsgPing         MessageType = 0x0001
	MsgPong         MessageType = 0x0002
	MsgError        MessageType = 0x0003
	MsgShutdown     MessageType = 0x0004
	MsgShutdownResp MessageType = 0x0005

	// Status (0x01xx)
	MsgStatus     MessageType = 0x0100
	MsgStatusResp MessageType = 0x0101

	// Detection control (0x02xx)
	MsgEnable      MessageType = 0x0200
	MsgEnableResp  MessageType = 0x0201
	MsgDisable     MessageType = 0x0202
	MsgDisableResp MessageType = 0x0203

	// Configuration (0x03xx)
	MsgGetConfig        MessageType = 0x0300
	MsgGetConfigResp    MessageType = 0x0301
	MsgUpdateConfig     MessageType = 0x0302
	MsgUpdateConfigResp MessageType = 0x0303
	MsgReload           MessageType = 0x0304
	MsgReloadResp       MessageType = 0x0305

	// Incident history (0x04xx)
	MsgHistory     MessageType = 0x0400
	MsgHistoryResp MessageType = 0x0401
)

// Header is the fixed-size message header (16 bytes)
type Header struct {
	Magic     uint32      // Protocol magic number
	Version   uint8       // Protocol version
	Flags     uint8       // Reserved
	Type      MessageType // Message type
	RequestID uint32      // Request ID for correlation
	Length    uint32      // Payload length (not including header)
}

// HeaderSize is the size of the header in bytes
const HeaderSize = 16

// maxPayload bounds a frame so a corrupt length field can't force a
// giant allocation.
const maxPayload = 4 * 1024 * 1024

// Message wraps a header and payload
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

// Write writes the header to a writer
func (h *Header) Write(w io.Writer) error {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads a header from a reader
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}

	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("invalid magic number: %x", h.Magic)
	}

	if h.Version > ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.Version)
	}

	return h, nil
}

// Write writes the message to a writer
func (m *Message) Write(w io.Writer) error {
	if err := m.Header.Write(w); err != nil {
		return err
	}
	if len(m.Payload) > 0 {
		_, err := w.Write(m.Payload)
		return err
	}
	return nil
}

// ReadMessage reads a complete message from a reader
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: *h}
	if h.Length > 0 {
		if h.Length > maxPayload {
			return nil, fmt.Errorf("payload too large: %d bytes", h.Length)
		}
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Request/Response payloads

// ErrorResponse is sent when an operation fails
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrUnknown        = 1
	ErrInvalidRequest = 2
	ErrInvalidConfig  = 3
	ErrInternalError  = 4
	ErrUnavailable    = 5
)

// StatusResponse is the full daemon status snapshot.
type StatusResponse struct {
	Version       string           `json:"version"`
	PID           int              `json:"pid"`
	StartedAt     time.Time        `json:"started_at"`
	Uptime        time.Duration    `json:"uptime"`
	Enabled       bool             `json:"enabled"`
	Armed         bool             `json:"armed"`
	LockError     string           `json:"lock_error,omitempty"`
	Detection     config.Detection `json:"detection"`
	Stats         pipeline.Stats   `json:"stats"`
	HookInstalled bool             `json:"hook_installed"`
}

// Ack acknowledges a state-changing request.
type Ack struct {
	Success bool   `json:"success"`
	Changed bool   `json:"changed"`
	Error   string `json:"error,omitempty"`
}

// UpdateConfigRequest carries a partial detection-parameter update.
// Nil fields keep their current value.
type UpdateConfigRequest struct {
	ThresholdMs   *int  `json:"threshold_ms,omitempty"`
	HistorySize   *int  `json:"history_size,omitempty"`
	BurstKeys     *int  `json:"burst_keys,omitempty"`
	BurstWindowMs *int  `json:"burst_window_ms,omitempty"`
	AllowAutoType *bool `json:"allow_auto_type,omitempty"`
}

// ConfigResponse returns the active detection snapshot.
type ConfigResponse struct {
	Enabled   bool             `json:"enabled"`
	Detection config.Detection `json:"detection"`
}

// HistoryRequest asks for recent incidents.
type HistoryRequest struct {
	Limit int `json:"limit,omitempty"`
}

// HistoryResponse returns incidents, newest first.
type HistoryResponse struct {
	Incidents []store.Incident `json:"incidents"`
}

// Encode encodes a payload to JSON bytes
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode decodes JSON bytes to a payload
func Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// NewErrorMessage creates an error message
func NewErrorMessage(requestID uint32, code int, message string) *Message {
	payload, _ := Encode(&ErrorResponse{
		Code:    code,
		Message: message,
	})
	return NewMessage(MsgError, requestID, payload)
}

// NewResponse creates a response message
func NewResponse(msgType MessageType, requestID uint32, v any) (*Message, error) {
	payload, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return NewMessage(msgType, requestID, payload), nil
}
