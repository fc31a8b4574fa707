package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/itsneelabh/docrouter/core"
	"github.com/itsneelabh/docrouter/memory"
)

// Base carries what every agent shares: an id, the shared memory and the
// ambient logger and telemetry.
type Base struct {
	AgentID   string
	Name      string
	Memory    *memory.SharedMemory
	Logger    core.Logger
	Telemetry core.Telemetry
}

// Option configures an agent's Base
type Option func(*Base)

// WithLogger sets the agent logger
func WithLogger(logger core.Logger) Option {
	return func(b *Base) {
		if logger != nil {
			b.Logger = logger
		}
	}
}

// WithTelemetry sets the agent telemetry
func WithTelemetry(t core.Telemetry) Option {
	return func(b *Base) {
		if t != nil {
			b.Telemetry = t
		}
	}
}

// NewBase creates a Base with a fresh agent id
func NewBase(name string, mem *memory.SharedMemory, opts ...Option) Base {
	if mem == nil {
		mem = memory.New(nil)
	}
	b := Base{
		AgentID:   uuid.New().String(),
		Name:      name,
		Memory:    mem,
		Logger:    &core.NoOpLogger{},
		Telemetry: &core.NoOpTelemetry{},
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// CreateMemoryEntry stores a new entry and returns its id
func (b *Base) CreateMemoryEntry(ctx context.Context, source, entryType string, extracted map[string]interface{}, threadID string, conversationID *string) (string, error) {
	return b.Memory.StoreEntry(ctx, source, entryType, extracted, threadID, conversationID)
}

// ThreadHistory returns the thread's entries oldest first
func (b *Base) ThreadHistory(ctx context.Context, threadID string) ([]*memory.MemoryEntry, error) {
	return b.Memory.GetThreadHistory(ctx, threadID)
}

// UpdateMemoryEntry patches an entry, reporting false when it does not exist
func (b *Base) UpdateMemoryEntry(ctx context.Context, id string, updates map[string]interface{}) (bool, error) {
	return b.Memory.UpdateEntry(ctx, id, updates)
}

// LogProcessing records an agent result in the shared memory.
//
// The thread id comes from metadata["thread_id"], kept even when empty. It is
// a new uuid only when the key is absent or null. Source and type default to
// "unknown", and the stored values are
// {input_metadata, processing_results, agent_id}.
func (b *Base) LogProcessing(ctx context.Context, doc Document, metadata Metadata, results interface{}) (string, error) {
	threadID, ok := metadata.String("thread_id")
	if !ok {
		threadID = uuid.New().String()
	}

	var conversationID *string
	if id, ok := metadata.String("conversation_id"); ok {
		conversationID = &id
	}

	source, ok := metadata.String("source")
	if !ok {
		source = "unknown"
	}
	entryType, ok := metadata.String("type")
	if !ok {
		entryType = "unknown"
	}

	inputMetadata, err := toPlainValue(metadata)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	processingResults, err := toPlainValue(results)
	if err != nil {
		return "", fmt.Errorf("encode results: %w", err)
	}
	if inputMetadata == nil {
		inputMetadata = map[string]interface{}{}
	}

	extracted := map[string]interface{}{
		"input_metadata":     inputMetadata,
		"processing_results": processingResults,
		"agent_id":           b.AgentID,
	}

	id, err := b.CreateMemoryEntry(ctx, source, entryType, extracted, threadID, conversationID)
	if err != nil {
		return "", err
	}

	b.Logger.DebugWithContext(ctx, "Logged processing result", map[string]interface{}{
		"agent":     b.Name,
		"entry_id":  id,
		"thread_id": threadID,
		"bytes":     doc.Size(),
	})
	return id, nil
}

// toPlainValue converts typed results to the map/slice/float64 shapes JSON
// decoding produces, so every memory backend returns identical values.
func toPlainValue(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
