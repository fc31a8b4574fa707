package agents

import (
	"context"
	"unicode/utf8"

	"github.com/itsneelabh/docrouter/memory"
)

// PDFResult is returned by PDFAgent
type PDFResult struct {
	Pages      int      `json:"pages"`
	Intent     string   `json:"intent"`
	Characters int      `json:"characters"`
	Entities   Entities `json:"entities"`
}

// PDFAgent extracts the text layer of a PDF and runs the entity extractor
// over it.
type PDFAgent struct {
	Base
}

// NewPDFAgent creates a PDF agent logging to mem
func NewPDFAgent(mem *memory.SharedMemory, opts ...Option) *PDFAgent {
	return &PDFAgent{Base: NewBase("pdf", mem, opts...)}
}

func (a *PDFAgent) Name() string { return a.Base.Name }

func (a *PDFAgent) Process(ctx context.Context, doc Document, metadata Metadata) (interface{}, error) {
	return a.ProcessPDF(ctx, doc, metadata)
}

// ProcessPDF extracts one PDF and logs the result. The intent comes from
// metadata["intent"] when the classifier already set it.
func (a *PDFAgent) ProcessPDF(ctx context.Context, doc Document, metadata Metadata) (*PDFResult, error) {
	ctx, span := a.Telemetry.StartSpan(ctx, "agent.pdf.process")
	defer span.End()

	result, err := a.extract(doc, metadata)
	if err == nil {
		_, err = a.LogProcessing(ctx, doc, metadata, result)
	}
	if err != nil {
		err = wrapFailure("PDF", err)
		span.RecordError(err)
		a.Logger.ErrorWithContext(ctx, "PDF processing failed", map[string]interface{}{
			"agent_id": a.AgentID,
			"filename": doc.Filename,
			"error":    err.Error(),
		})
		return nil, err
	}

	span.SetAttribute("pdf.pages", result.Pages)
	span.SetAttribute("pdf.intent", result.Intent)
	a.Telemetry.RecordMetric("docrouter.pdfs.processed", 1, map[string]string{"intent": result.Intent})
	a.Logger.InfoWithContext(ctx, "PDF processed", map[string]interface{}{
		"agent_id": a.AgentID,
		"filename": doc.Filename,
		"pages":    result.Pages,
		"intent":   result.Intent,
	})
	return result, nil
}

func (a *PDFAgent) extract(doc Document, metadata Metadata) (*PDFResult, error) {
	if !doc.IsBinary() {
		return nil, errInvalidContent("Invalid PDF content")
	}
	text, err := extractPDFText(doc.Binary)
	if err != nil {
		return nil, err
	}
	content := text.String()

	intent, ok := metadata.String("intent")
	if !ok || intent == "" {
		intent = AnalyzeIntent(content)
	}

	return &PDFResult{
		Pages:      len(text.Pages),
		Intent:     intent,
		Characters: utf8.RuneCountInString(content),
		Entities:   ExtractEntities(content),
	}, nil
}
