// Package memory stores processing results as entries grouped into threads.
//
// Entries are written once by an agent and may later be patched, deleted or
// cleared per thread. The store offers no eviction, indexing or consistency
// guarantees beyond last write wins; the backend decides where entries live.
package memory

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/itsneelabh/docrouter/core"
)

// MemoryEntry is one logged processing result.
type MemoryEntry struct {
	ID              string                 `json:"id"`
	Source          string                 `json:"source"`
	Type            string                 `json:"type"`
	Timestamp       time.Time              `json:"timestamp"`
	ExtractedValues map[string]interface{} `json:"extracted_values"`
	ThreadID        string                 `json:"thread_id"`
	ConversationID  *string                `json:"conversation_id"`
}

// NewEntryID returns an ID of the form entry:<unix-seconds>.<micros>-<8 hex>.
func NewEntryID(now time.Time) string {
	return fmt.Sprintf("entry:%d.%06d-%s", now.Unix(), now.Nanosecond()/1000, uuid.New().String()[:8])
}

// Clone returns a copy that shares no maps with e. ExtractedValues is copied
// one level deep, nested values are shared.
func (e *MemoryEntry) Clone() *MemoryEntry {
	if e == nil {
		return nil
	}
	c := *e
	if e.ExtractedValues != nil {
		c.ExtractedValues = make(map[string]interface{}, len(e.ExtractedValues))
		for k, v := range e.ExtractedValues {
			c.ExtractedValues[k] = v
		}
	}
	if e.ConversationID != nil {
		id := *e.ConversationID
		c.ConversationID = &id
	}
	return &c
}

// ApplyUpdates patches e with dictionary-style updates. Known keys overwrite
// the matching field, unknown keys are ignored. The id is never patched.
// A value of the wrong type fails with core.ErrInvalidPatch and leaves e untouched.
func (e *MemoryEntry) ApplyUpdates(updates map[string]interface{}) error {
	patched := e.Clone()

	for key, value := range updates {
		switch key {
		case "source", "type", "thread_id":
			s, ok := value.(string)
			if !ok {
				return invalidPatch(key, value)
			}
			switch key {
			case "source":
				patched.Source = s
			case "type":
				patched.Type = s
			case "thread_id":
				patched.ThreadID = s
			}
		case "timestamp":
			switch v := value.(type) {
			case time.Time:
				patched.Timestamp = v
			case string:
				ts, err := time.Parse(time.RFC3339Nano, v)
				if err != nil {
					return invalidPatch(key, value)
				}
				patched.Timestamp = ts
			default:
				return invalidPatch(key, value)
			}
		case "extracted_values":
			m, ok := value.(map[string]interface{})
			if !ok {
				return invalidPatch(key, value)
			}
			patched.ExtractedValues = m
		case "conversation_id":
			switch v := value.(type) {
			case nil:
				patched.ConversationID = nil
			case string:
				patched.ConversationID = &v
			default:
				return invalidPatch(key, value)
			}
		}
	}

	*e = *patched
	return nil
}

func invalidPatch(key string, value interface{}) error {
	return fmt.Errorf("field %s cannot hold %T: %w", key, value, core.ErrInvalidPatch)
}
