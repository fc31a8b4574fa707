package agents

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"github.com/itsneelabh/docrouter/core"
	"github.com/itsneelabh/docrouter/memory"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var intentSchemas = mustCompileSchemas()

func mustCompileSchemas() map[string]*jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	out := make(map[string]*jsonschema.Schema, len(intentKeywords))
	for _, intent := range SupportedIntents() {
		data, err := schemaFS.ReadFile("schemas/" + intent + ".json")
		if err != nil {
			panic(fmt.Sprintf("schema %s: %v", intent, err))
		}
		url := "https://docrouter.local/schemas/" + intent + ".json"
		if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
			panic(fmt.Sprintf("schema %s: %v", intent, err))
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			panic(fmt.Sprintf("schema %s: %v", intent, err))
		}
		out[intent] = schema
	}
	return out
}

// JSONResult is returned by JSONAgent
type JSONResult struct {
	Valid            bool                   `json:"valid"`
	FormattedData    map[string]interface{} `json:"formatted_data"`
	Anomalies        []string               `json:"anomalies"`
	ValidationErrors []string               `json:"validation_errors"`
}

// intentFields lists, per intent, the fields copied out of "data" and the
// default used when a field is absent.
var intentFields = map[string][]struct {
	Name    string
	Default func() interface{}
}{
	IntentInvoice: {
		{"invoice_number", nil},
		{"amount", nil},
		{"date", nil},
		{"items", emptyList},
		{"customer", emptyObject},
	},
	IntentRFQ: {
		{"rfq_number", nil},
		{"requested_items", emptyList},
		{"deadline", nil},
		{"contact", emptyObject},
	},
	IntentComplaint: {
		{"complaint_id", nil},
		{"description", nil},
		{"severity", nil},
		{"contact", emptyObject},
	},
	IntentRegulation: {
		{"regulation_id", nil},
		{"title", nil},
		{"requirements", emptyList},
		{"effective_date", nil},
	},
}

func emptyList() interface{}   { return []interface{}{} }
func emptyObject() interface{} { return map[string]interface{}{} }

// JSONAgent validates structured documents against the schema for their
// intent, normalizes them and flags missing business fields.
type JSONAgent struct {
	Base
}

// NewJSONAgent creates a JSON agent logging to mem
func NewJSONAgent(mem *memory.SharedMemory, opts ...Option) *JSONAgent {
	return &JSONAgent{Base: NewBase("json", mem, opts...)}
}

func (a *JSONAgent) Name() string { return a.Base.Name }

func (a *JSONAgent) Process(ctx context.Context, doc Document, metadata Metadata) (interface{}, error) {
	return a.ProcessJSON(ctx, doc, metadata)
}

// ProcessJSON decodes a JSON text document and processes it
func (a *JSONAgent) ProcessJSON(ctx context.Context, doc Document, metadata Metadata) (*JSONResult, error) {
	if doc.IsBinary() {
		return nil, a.fail(ctx, wrapFailure("JSON", errInvalidContent("Invalid JSON content")))
	}
	raw := []byte(doc.Text)

	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, a.fail(ctx, &ProcessingError{Message: "Invalid JSON format", Kind: core.ErrInvalidContent, Err: err})
	}
	obj, ok := decoded.(map[string]interface{})
	if !ok {
		return nil, a.fail(ctx, wrapFailure("JSON", errInvalidContent("Invalid JSON content")))
	}
	return a.process(ctx, doc, raw, obj, metadata)
}

// ProcessObject processes an already-decoded document
func (a *JSONAgent) ProcessObject(ctx context.Context, obj map[string]interface{}, metadata Metadata) (*JSONResult, error) {
	if obj == nil {
		return nil, a.fail(ctx, wrapFailure("JSON", errInvalidContent("Invalid JSON content")))
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, a.fail(ctx, wrapFailure("JSON", err))
	}
	// Re-decode so numbers have the shapes the schema validator expects
	var plain map[string]interface{}
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, a.fail(ctx, wrapFailure("JSON", err))
	}
	return a.process(ctx, TextDocument(string(raw)), raw, plain, metadata)
}

func (a *JSONAgent) process(ctx context.Context, doc Document, raw []byte, obj map[string]interface{}, metadata Metadata) (*JSONResult, error) {
	ctx, span := a.Telemetry.StartSpan(ctx, "agent.json.process")
	defer span.End()

	intent := documentIntent(raw, metadata)
	valid, validationErrors := validateDocument(obj, intent)
	formatted := formatDocument(raw, intent)

	result := &JSONResult{
		Valid:            valid,
		FormattedData:    formatted,
		Anomalies:        checkAnomalies(formatted, intent),
		ValidationErrors: validationErrors,
	}

	if _, err := a.LogProcessing(ctx, doc, metadata, result); err != nil {
		span.RecordError(err)
		return nil, a.fail(ctx, wrapFailure("JSON", err))
	}

	span.SetAttribute("json.intent", intent)
	span.SetAttribute("json.valid", valid)
	a.Telemetry.RecordMetric("docrouter.json.processed", 1, map[string]string{
		"intent": intent,
		"valid":  fmt.Sprint(valid),
	})
	a.Logger.InfoWithContext(ctx, "JSON document processed", map[string]interface{}{
		"agent_id":  a.AgentID,
		"intent":    intent,
		"valid":     valid,
		"anomalies": len(result.Anomalies),
	})
	return result, nil
}

func (a *JSONAgent) fail(ctx context.Context, err error) error {
	a.Logger.ErrorWithContext(ctx, "JSON processing failed", map[string]interface{}{
		"agent_id": a.AgentID,
		"error":    err.Error(),
	})
	return err
}

// documentIntent prefers a non-empty metadata intent, then the document's
// "type", then IntentUnknown.
func documentIntent(raw []byte, metadata Metadata) string {
	if intent, ok := metadata.String("intent"); ok && intent != "" {
		return intent
	}
	t := gjson.GetBytes(raw, "type")
	if !t.Exists() || t.Type == gjson.Null {
		return IntentUnknown
	}
	return t.String()
}

func validateDocument(obj map[string]interface{}, intent string) (bool, []string) {
	schema, ok := intentSchemas[intent]
	if !ok {
		return false, []string{"Unsupported intent: " + intent}
	}
	err := schema.Validate(obj)
	if err == nil {
		return true, []string{}
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return false, []string{err.Error()}
	}
	return false, validationMessages(ve)
}

// validationMessages flattens the error tree into one line per failing leaf
func validationMessages(ve *jsonschema.ValidationError) []string {
	var out []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			out = append(out, fmt.Sprintf("%s: %s", loc, e.Message))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	sort.Strings(out)
	return out
}

// formatDocument builds {type, timestamp, source} plus the intent's fields
func formatDocument(raw []byte, intent string) map[string]interface{} {
	formatted := map[string]interface{}{
		"type":      intent,
		"timestamp": lookup(raw, "timestamp", nil),
		"source":    lookup(raw, "source", nil),
	}
	for _, f := range intentFields[intent] {
		formatted[f.Name] = lookup(raw, "data."+f.Name, f.Default)
	}
	return formatted
}

func lookup(raw []byte, path string, def func() interface{}) interface{} {
	r := gjson.GetBytes(raw, path)
	if !r.Exists() {
		if def == nil {
			return nil
		}
		return def()
	}
	return r.Value()
}

var anomalyChecks = map[string][]struct {
	Field   string
	Message string
}{
	IntentInvoice: {
		{"invoice_number", "Missing invoice number"},
		{"amount", "Invalid or missing amount"},
		{"items", "No items in invoice"},
	},
	IntentRFQ: {
		{"rfq_number", "Missing RFQ number"},
		{"requested_items", "No requested items"},
		{"deadline", "Missing deadline"},
	},
	IntentComplaint: {
		{"complaint_id", "Missing complaint ID"},
		{"description", "Missing complaint description"},
		{"severity", "Missing severity level"},
	},
	IntentRegulation: {
		{"regulation_id", "Missing regulation ID"},
		{"requirements", "No requirements specified"},
		{"effective_date", "Missing effective date"},
	},
}

func checkAnomalies(formatted map[string]interface{}, intent string) []string {
	anomalies := []string{}
	for _, c := range anomalyChecks[intent] {
		v := formatted[c.Field]
		bad := !truthy(v)
		if c.Field == "amount" && !bad {
			n, ok := v.(float64)
			bad = !ok || n <= 0
		}
		if bad {
			anomalies = append(anomalies, c.Message)
		}
	}
	return anomalies
}

// truthy treats nil, false, zero, "" and empty collections as missing
func truthy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case []interface{}:
		return len(x) > 0
	case map[string]interface{}:
		return len(x) > 0
	default:
		return true
	}
}
