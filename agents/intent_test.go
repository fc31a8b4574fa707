package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzeIntent(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"no keywords", "hello there", IntentUnknown},
		{"invoice", "Please find the invoice and payment details", IntentInvoice},
		{"rfq", "Request for quote on our pricing", IntentRFQ},
		{"complaint", "I have a complaint about this problem", IntentComplaint},
		{"regulation", "New compliance policy requirement", IntentRegulation},
		{"case insensitive", "INVOICE", IntentInvoice},
		{"highest count wins", "invoice issue problem concern", IntentComplaint},
		// one hit each: table order decides
		{"tie goes to invoice", "bill and policy", IntentInvoice},
		{"tie goes to rfq over complaint", "pricing issue", IntentRFQ},
		{"tie goes to complaint over regulation", "concern about compliance", IntentComplaint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AnalyzeIntent(tt.text))
		})
	}
}

func TestIntentScores_CountsDistinctKeywords(t *testing.T) {
	scores := IntentScores("invoice invoice invoice amount due")
	assert.Equal(t, 2, scores[IntentInvoice])
	assert.Equal(t, 0, scores[IntentRFQ])
}

func TestMatchIntent(t *testing.T) {
	assert.Equal(t, IntentGeneral, MatchIntent("just saying hi"))
	// first matching pattern in table order, not the highest count
	assert.Equal(t, IntentInvoice, MatchIntent("complaint issue problem about a bill"))
	assert.Equal(t, IntentRFQ, MatchIntent("Quote Request for widgets"))
	assert.Equal(t, IntentRegulation, MatchIntent("new regulation"))
}

func TestDetectUrgency(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Please respond ASAP", UrgencyHigh},
		{"reply soon, it is urgent", UrgencyHigh},
		{"get back to me shortly", UrgencyMedium},
		{"no rush", UrgencyLow},
		{"nothing special", UrgencyLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectUrgency(tt.text), tt.text)
	}
}

func TestConfidence(t *testing.T) {
	assert.InDelta(t, 0.85, Confidence(FormatJSON, IntentInvoice), 1e-9)
	assert.InDelta(t, 0.70, Confidence(FormatEmail, IntentUnknown), 1e-9)
	assert.InDelta(t, 0.70, Confidence("xml", IntentRFQ), 1e-9)
	assert.InDelta(t, 0.55, Confidence("xml", "other"), 1e-9)
}

func TestSupportedIntents(t *testing.T) {
	assert.Equal(t, []string{"invoice", "rfq", "complaint", "regulation"}, SupportedIntents())
	assert.True(t, IsSupportedIntent("rfq"))
	assert.False(t, IsSupportedIntent("unknown"))
}
