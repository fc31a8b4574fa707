package agents

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/itsneelabh/docrouter/memory"
)

// Classification is the classifier's verdict on a document
type Classification struct {
	Format     string  `json:"format"`
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

var supportedFormats = []string{FormatPDF, FormatJSON, FormatEmail}

// ClassifierAgent detects the format and intent of incoming documents.
type ClassifierAgent struct {
	Base
}

// NewClassifierAgent creates a classifier logging to mem
func NewClassifierAgent(mem *memory.SharedMemory, opts ...Option) *ClassifierAgent {
	return &ClassifierAgent{Base: NewBase("classifier", mem, opts...)}
}

func (a *ClassifierAgent) Name() string { return a.Base.Name }

func (a *ClassifierAgent) Process(ctx context.Context, doc Document, metadata Metadata) (interface{}, error) {
	return a.Classify(ctx, doc, metadata)
}

// Classify detects format and intent, scores the result and logs it
func (a *ClassifierAgent) Classify(ctx context.Context, doc Document, metadata Metadata) (*Classification, error) {
	ctx, span := a.Telemetry.StartSpan(ctx, "agent.classifier.classify")
	defer span.End()

	format, err := DetectFormat(doc)
	if err != nil {
		span.RecordError(err)
		a.Logger.WarnWithContext(ctx, "Document format not recognized", map[string]interface{}{
			"agent_id": a.AgentID,
			"filename": doc.Filename,
			"bytes":    doc.Size(),
		})
		return nil, err
	}

	intent, err := DetectIntent(doc, format)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result := &Classification{
		Format:     format,
		Intent:     intent,
		Confidence: Confidence(format, intent),
	}

	if _, err := a.LogProcessing(ctx, doc, metadata, result); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttribute("document.format", format)
	span.SetAttribute("document.intent", intent)
	a.Telemetry.RecordMetric("docrouter.documents.classified", 1, map[string]string{
		"format": format,
		"intent": intent,
	})
	a.Logger.InfoWithContext(ctx, "Document classified", map[string]interface{}{
		"agent_id":   a.AgentID,
		"format":     format,
		"intent":     intent,
		"confidence": result.Confidence,
	})
	return result, nil
}

// DetectFormat tries JSON, then email headers, on text documents and PDF on
// binary ones.
func DetectFormat(doc Document) (string, error) {
	if doc.IsBinary() {
		if looksLikePDF(doc.Binary) {
			return FormatPDF, nil
		}
		return "", errUnsupportedFormat()
	}
	if json.Valid([]byte(doc.Text)) {
		return FormatJSON, nil
	}
	if looksLikeEmail(doc.Text) {
		return FormatEmail, nil
	}
	return "", errUnsupportedFormat()
}

// DetectIntent runs the format-specific intent detection
func DetectIntent(doc Document, format string) (string, error) {
	switch format {
	case FormatJSON:
		return jsonIntent(doc.Text)
	case FormatEmail:
		return emailIntent(doc.Text), nil
	case FormatPDF:
		text, err := extractPDFText(doc.Binary)
		if err != nil {
			return "", wrapFailure("PDF", err)
		}
		return AnalyzeIntent(text.String()), nil
	default:
		return "", errUnsupportedFormat()
	}
}

// jsonIntent uses the lowercased top-level "type" when it is a string and
// keyword analysis of the re-encoded document otherwise.
func jsonIntent(text string) (string, error) {
	parsed := gjson.Parse(text)
	if parsed.IsObject() {
		if t := parsed.Get("type"); t.Type == gjson.String {
			return strings.ToLower(t.String()), nil
		}
	}

	var v interface{}
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return "", errInvalidContent("Invalid JSON content")
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return "", errInvalidContent("Invalid JSON content")
	}
	return AnalyzeIntent(string(encoded)), nil
}

func emailIntent(text string) string {
	msg, err := parseEmail(text)
	if err != nil {
		return IntentUnknown
	}
	// An undecodable body still classifies on the subject
	body, _ := msg.bodyText()
	return AnalyzeIntent(msg.Subject + " " + body)
}

// Confidence averages a format score (0.8 supported, 0.5 otherwise) and an
// intent score (0.9 supported, 0.6 otherwise).
func Confidence(format, intent string) float64 {
	formatScore := 0.5
	for _, f := range supportedFormats {
		if f == format {
			formatScore = 0.8
			break
		}
	}
	intentScore := 0.6
	if IsSupportedIntent(intent) {
		intentScore = 0.9
	}
	return (formatScore + intentScore) / 2
}
