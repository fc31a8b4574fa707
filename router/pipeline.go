// Package router wires the agents into the classify-then-dispatch pipeline
// and exposes it, together with the shared memory, over HTTP.
package router

import (
	"bytes"
	"context"
	"unicode/utf8"

	"github.com/itsneelabh/docrouter/agents"
	"github.com/itsneelabh/docrouter/core"
	"github.com/itsneelabh/docrouter/memory"
)

// Result is the response of one pipeline run
type Result struct {
	Classification   *agents.Classification `json:"classification"`
	ProcessingResult interface{}            `json:"processing_result"`
}

// Pipeline classifies a document and hands it to the agent for its format.
type Pipeline struct {
	Classifier *agents.ClassifierAgent
	JSON       *agents.JSONAgent
	Email      *agents.EmailAgent
	PDF        *agents.PDFAgent

	memory    *memory.SharedMemory
	logger    core.Logger
	telemetry core.Telemetry
}

// PipelineOption configures a Pipeline
type PipelineOption func(*Pipeline)

// WithLogger sets the logger for the pipeline and its agents
func WithLogger(logger core.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTelemetry sets the telemetry for the pipeline and its agents
func WithTelemetry(t core.Telemetry) PipelineOption {
	return func(p *Pipeline) {
		if t != nil {
			p.telemetry = t
		}
	}
}

// NewPipeline creates the four agents, all logging to mem
func NewPipeline(mem *memory.SharedMemory, opts ...PipelineOption) *Pipeline {
	if mem == nil {
		mem = memory.New(nil)
	}
	p := &Pipeline{
		memory:    mem,
		logger:    &core.NoOpLogger{},
		telemetry: &core.NoOpTelemetry{},
	}
	for _, opt := range opts {
		opt(p)
	}

	agentOpts := []agents.Option{agents.WithLogger(p.logger), agents.WithTelemetry(p.telemetry)}
	p.Classifier = agents.NewClassifierAgent(mem, agentOpts...)
	p.JSON = agents.NewJSONAgent(mem, agentOpts...)
	p.Email = agents.NewEmailAgent(mem, agentOpts...)
	p.PDF = agents.NewPDFAgent(mem, agentOpts...)
	return p
}

// Memory returns the shared memory the agents log to
func (p *Pipeline) Memory() *memory.SharedMemory {
	return p.memory
}

// ProcessText classifies text content and extracts it with the JSON or
// email agent. The classified intent is added to the metadata passed on.
func (p *Pipeline) ProcessText(ctx context.Context, content string, metadata agents.Metadata) (*Result, error) {
	return p.process(ctx, agents.TextDocument(content), metadata)
}

// ProcessFile handles an upload. Valid UTF-8 is processed as text unless it
// carries the PDF signature; everything else is binary.
func (p *Pipeline) ProcessFile(ctx context.Context, filename string, data []byte, metadata agents.Metadata) (*Result, error) {
	if utf8.Valid(data) && !bytes.HasPrefix(data, []byte("%PDF-")) {
		doc := agents.TextDocument(string(data))
		doc.Filename = filename
		return p.process(ctx, doc, metadata)
	}
	return p.process(ctx, agents.BinaryDocument(data, filename), metadata)
}

func (p *Pipeline) process(ctx context.Context, doc agents.Document, metadata agents.Metadata) (*Result, error) {
	ctx, span := p.telemetry.StartSpan(ctx, "pipeline.process")
	defer span.End()

	classification, err := p.Classifier.Classify(ctx, doc, metadata.Clone())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttribute("document.format", classification.Format)
	span.SetAttribute("document.intent", classification.Intent)

	routed := metadata.Clone()
	routed["intent"] = classification.Intent

	agent, err := p.agentFor(classification.Format)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result, err := agent.Process(ctx, doc, routed)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	p.logger.InfoWithContext(ctx, "Document routed", map[string]interface{}{
		"format": classification.Format,
		"intent": classification.Intent,
		"agent":  agent.Name(),
	})
	return &Result{Classification: classification, ProcessingResult: result}, nil
}

func (p *Pipeline) agentFor(format string) (agents.Processor, error) {
	switch format {
	case agents.FormatJSON:
		return p.JSON, nil
	case agents.FormatEmail:
		return p.Email, nil
	case agents.FormatPDF:
		return p.PDF, nil
	default:
		return nil, &agents.ProcessingError{
			Message: "Unsupported format: " + format,
			Kind:    core.ErrUnsupportedFormat,
		}
	}
}
