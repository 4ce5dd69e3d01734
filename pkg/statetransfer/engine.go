// Package statetransfer implements the replica-side shim around a
// pluggable state-transfer engine: it drives the engine with a recurring
// timer, bridges inbound transport frames to it, runs the post-
// completion reconciliation pipeline, and enforces strict start/stop
// ordering.
package statetransfer

import "context"

// Header is the fixed-size structure prefixed to every inbound
// state-transfer wire frame. Shim strips exactly this many bytes before
// handing the payload to the engine.
type Header struct {
	SourceID uint16
	Type     uint8
	Size     uint32
}

// HeaderSize is the wire size of Header.
const HeaderSize = 2 + 1 + 4

// MessageTypeStateTransfer is the outbound frame type code used by
// SendStateTransferMessage.
const MessageTypeStateTransfer uint8 = 1

// Engine is the pluggable IStateTransfer surface the shim drives. A null
// implementation is provided by NewNullEngine for configurations without
// real state transfer (e.g. a single-node demo deployment).
type Engine interface {
	// OnTimer is invoked on the shim's recurring timer tick.
	OnTimer(ctx context.Context)
	// HandleMessage delivers an inbound payload (header already
	// stripped) along with the sender's principal id.
	HandleMessage(ctx context.Context, senderID uint16, payload []byte) error
	// StartRunning begins the engine's internal processing.
	StartRunning(ctx context.Context) error
	// StopRunning halts the engine's internal processing.
	StopRunning(ctx context.Context) error
}

// NullEngine is a no-op Engine, for deployments that disable state
// transfer entirely (e.g. a single replica that never falls behind).
type NullEngine struct{}

// NewNullEngine constructs a NullEngine.
func NewNullEngine() *NullEngine { return &NullEngine{} }

func (NullEngine) OnTimer(ctx context.Context) {}
func (NullEngine) HandleMessage(ctx context.Context, senderID uint16, payload []byte) error {
	return nil
}
func (NullEngine) StartRunning(ctx context.Context) error { return nil }
func (NullEngine) StopRunning(ctx context.Context) error  { return nil }
