package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/docrouter/core"
	"github.com/itsneelabh/docrouter/internal/testpdf"
	"github.com/itsneelabh/docrouter/memory"
)

const sampleEmail = "From: John Doe <john@example.com>\r\n" +
	"Subject: Request for Quote\r\n" +
	"Date: Wed, 20 Mar 2024 10:00:00 +0000\r\n" +
	"\r\n" +
	"We need pricing for 100 units. Please respond ASAP.\r\n"

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name    string
		doc     Document
		want    string
		wantErr bool
	}{
		{"json object", TextDocument(`{"type":"invoice"}`), FormatJSON, false},
		{"json scalar", TextDocument(`42`), FormatJSON, false},
		{"email", TextDocument(sampleEmail), FormatEmail, false},
		{"email without blank line", TextDocument("From: John <john@example.com>\nSubject: Invoice 42\nPlease pay the invoice by Friday.\n"), FormatEmail, false},
		{"email without subject", TextDocument("From: a@b.com\r\n\r\nbody"), "", true},
		{"plain text", TextDocument("hello world"), "", true},
		{"pdf", BinaryDocument(testpdf.Build("Invoice"), "a.pdf"), FormatPDF, false},
		{"random bytes", BinaryDocument([]byte{0x00, 0xff, 0x10}, "x.bin"), "", true},
		{"truncated pdf", BinaryDocument([]byte("%PDF-1.4\nnot really"), "x.pdf"), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFormat(tt.doc)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, core.ErrUnsupportedFormat)
				assert.Equal(t, "Unsupported format", err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectIntent_JSON(t *testing.T) {
	intent, err := DetectIntent(TextDocument(`{"type":"Invoice","data":{}}`), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "invoice", intent)

	// unknown type values are passed through lowercased
	intent, err = DetectIntent(TextDocument(`{"type":"Purchase-Order"}`), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "purchase-order", intent)

	// without a string type the whole document is keyword analyzed
	intent, err = DetectIntent(TextDocument(`{"note":"We have a Complaint about an issue"}`), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, IntentComplaint, intent)

	intent, err = DetectIntent(TextDocument(`[1,2,3]`), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, IntentUnknown, intent)
}

func TestDetectIntent_EmailAndPDF(t *testing.T) {
	intent, err := DetectIntent(TextDocument(sampleEmail), FormatEmail)
	require.NoError(t, err)
	assert.Equal(t, IntentRFQ, intent)

	intent, err = DetectIntent(TextDocument("From: John <john@example.com>\nSubject: Invoice 42\nPlease pay the invoice by Friday.\n"), FormatEmail)
	require.NoError(t, err)
	assert.Equal(t, IntentInvoice, intent)

	intent, err = DetectIntent(BinaryDocument(testpdf.Build("New compliance policy", "Regulation text"), "r.pdf"), FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, IntentRegulation, intent)
}

func TestClassifierAgent_Classify(t *testing.T) {
	ctx := context.Background()
	mem := memory.New(nil)
	agent := NewClassifierAgent(mem)

	result, err := agent.Classify(ctx, TextDocument(`{"type":"invoice","data":{}}`), Metadata{
		"thread_id": "thread-1",
		"source":    "api",
	})
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, result.Format)
	assert.Equal(t, IntentInvoice, result.Intent)
	assert.InDelta(t, 0.85, result.Confidence, 1e-9)

	history, err := agent.ThreadHistory(ctx, "thread-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "api", history[0].Source)
	assert.Equal(t, "unknown", history[0].Type)

	logged := history[0].ExtractedValues
	assert.Equal(t, agent.AgentID, logged["agent_id"])
	assert.Equal(t, map[string]interface{}{
		"format":     "json",
		"intent":     "invoice",
		"confidence": result.Confidence,
	}, logged["processing_results"])
}

func TestClassifierAgent_UnsupportedNotLogged(t *testing.T) {
	ctx := context.Background()
	mem := memory.New(nil)
	agent := NewClassifierAgent(mem)

	_, err := agent.Classify(ctx, TextDocument("plain words"), Metadata{"thread_id": "t"})
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)

	history, err := mem.GetThreadHistory(ctx, "t")
	require.NoError(t, err)
	assert.Empty(t, history)
}
