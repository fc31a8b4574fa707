package agents

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/docrouter/core"
	"github.com/itsneelabh/docrouter/memory"
)

const sampleInvoice = `{
  "type": "invoice",
  "timestamp": "2024-03-20T10:00:00Z",
  "source": "erp",
  "data": {
    "invoice_number": "INV-001",
    "amount": 1000.5,
    "date": "2024-03-20",
    "items": [{"sku": "A1", "qty": 2}],
    "customer": {"name": "Acme"}
  }
}`

func TestJSONAgent_ValidInvoice(t *testing.T) {
	mem := memory.New(nil)
	agent := NewJSONAgent(mem)

	result, err := agent.ProcessJSON(context.Background(), TextDocument(sampleInvoice), Metadata{"thread_id": "t-json"})
	require.NoError(t, err)

	assert.True(t, result.Valid)
	assert.Empty(t, result.ValidationErrors)
	assert.NotNil(t, result.ValidationErrors)
	assert.Empty(t, result.Anomalies)
	assert.Equal(t, map[string]interface{}{
		"type":           "invoice",
		"timestamp":      "2024-03-20T10:00:00Z",
		"source":         "erp",
		"invoice_number": "INV-001",
		"amount":         1000.5,
		"date":           "2024-03-20",
		"items":          []interface{}{map[string]interface{}{"sku": "A1", "qty": float64(2)}},
		"customer":       map[string]interface{}{"name": "Acme"},
	}, result.FormattedData)

	history, err := mem.GetThreadHistory(context.Background(), "t-json")
	require.NoError(t, err)
	require.Len(t, history, 1)
	results := history[0].ExtractedValues["processing_results"].(map[string]interface{})
	assert.Equal(t, true, results["valid"])
}

func TestJSONAgent_Anomalies(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want []string
	}{
		{
			name: "invoice missing everything",
			doc:  `{"type":"invoice","data":{}}`,
			want: []string{"Missing invoice number", "Invalid or missing amount", "No items in invoice"},
		},
		{
			name: "invoice negative amount",
			doc:  `{"type":"invoice","data":{"invoice_number":"1","amount":-5,"items":[{}]}}`,
			want: []string{"Invalid or missing amount"},
		},
		{
			name: "invoice non-numeric amount",
			doc:  `{"type":"invoice","data":{"invoice_number":"1","amount":"ten","items":[{}]}}`,
			want: []string{"Invalid or missing amount"},
		},
		{
			name: "rfq",
			doc:  `{"type":"rfq"}`,
			want: []string{"Missing RFQ number", "No requested items", "Missing deadline"},
		},
		{
			name: "complaint",
			doc:  `{"type":"complaint","data":{"complaint_id":"C1"}}`,
			want: []string{"Missing complaint description", "Missing severity level"},
		},
		{
			name: "regulation",
			doc:  `{"type":"regulation","data":{"regulation_id":"R1","requirements":["a"]}}`,
			want: []string{"Missing effective date"},
		},
		{
			name: "unknown intent has no checks",
			doc:  `{"type":"memo"}`,
			want: []string{},
		},
	}

	agent := NewJSONAgent(memory.New(nil))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := agent.ProcessJSON(context.Background(), TextDocument(tt.doc), Metadata{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Anomalies)
		})
	}
}

func TestJSONAgent_Validation(t *testing.T) {
	agent := NewJSONAgent(memory.New(nil))
	ctx := context.Background()

	result, err := agent.ProcessJSON(ctx, TextDocument(`{"type":"memo"}`), Metadata{})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, []string{"Unsupported intent: memo"}, result.ValidationErrors)

	result, err = agent.ProcessJSON(ctx, TextDocument(`{"type":"invoice","data":{"amount":"ten"}}`), Metadata{})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.Len(t, result.ValidationErrors, 1)
	assert.True(t, strings.HasPrefix(result.ValidationErrors[0], "/data/amount: "), result.ValidationErrors[0])

	// a metadata intent overrides the document type, so the document is
	// validated against the invoice schema without a type field
	result, err = agent.ProcessJSON(ctx, TextDocument(`{"data":{"invoice_number":"X"}}`), Metadata{"intent": "invoice"})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "invoice", result.FormattedData["type"])
	require.Len(t, result.ValidationErrors, 1)
	assert.Contains(t, result.ValidationErrors[0], "type")

	// documents without a type and without metadata fall back to unknown
	result, err = agent.ProcessJSON(ctx, TextDocument(`{"data":{}}`), Metadata{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Unsupported intent: unknown"}, result.ValidationErrors)
}

func TestJSONAgent_ProcessObject(t *testing.T) {
	agent := NewJSONAgent(memory.New(nil))

	result, err := agent.ProcessObject(context.Background(), map[string]interface{}{
		"type": "rfq",
		"data": map[string]interface{}{
			"rfq_number":      "RFQ-1",
			"requested_items": []map[string]interface{}{{"sku": "B"}},
			"deadline":        "2024-05-01",
		},
	}, Metadata{})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Anomalies)
	assert.Equal(t, map[string]interface{}{}, result.FormattedData["contact"])
}

func TestJSONAgent_Errors(t *testing.T) {
	agent := NewJSONAgent(memory.New(nil))
	ctx := context.Background()

	_, err := agent.ProcessJSON(ctx, TextDocument(`{"type":`), Metadata{})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "Invalid JSON format: "), err.Error())
	assert.ErrorIs(t, err, core.ErrInvalidContent)

	_, err = agent.ProcessJSON(ctx, TextDocument(`[1,2]`), Metadata{})
	require.Error(t, err)
	assert.Equal(t, "Error processing JSON: Invalid JSON content", err.Error())

	_, err = agent.ProcessJSON(ctx, BinaryDocument([]byte("{}"), "a.json"), Metadata{})
	assert.ErrorIs(t, err, core.ErrInvalidContent)
}
