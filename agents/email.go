package agents

import (
	"context"
	"strings"
	"time"

	"github.com/itsneelabh/docrouter/memory"
)

// Contact is the parsed sender
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Communication is the message itself
type Communication struct {
	Subject string `json:"subject"`
	Date    string `json:"date"`
	Body    string `json:"body"`
}

// EmailClassification is the intent and urgency of a message
type EmailClassification struct {
	Intent  string `json:"intent"`
	Urgency string `json:"urgency"`
}

// CRMMetadata records when and by whom a record was produced
type CRMMetadata struct {
	ProcessedAt string `json:"processed_at"`
	AgentID     string `json:"agent_id"`
}

// CRMRecord is an email formatted for a CRM import
type CRMRecord struct {
	Contact        Contact             `json:"contact"`
	Communication  Communication       `json:"communication"`
	Classification EmailClassification `json:"classification"`
	Entities       Entities            `json:"entities"`
	Metadata       CRMMetadata         `json:"metadata"`
}

// EmailAnalysis summarizes what was found in a message
type EmailAnalysis struct {
	Intent   string   `json:"intent"`
	Urgency  string   `json:"urgency"`
	Entities Entities `json:"entities"`
}

// EmailResult is returned by EmailAgent
type EmailResult struct {
	CRMData  CRMRecord     `json:"crm_data"`
	Analysis EmailAnalysis `json:"analysis"`
}

// isoLayout writes UTC as +00:00 rather than Z
const isoLayout = "2006-01-02T15:04:05-07:00"

// EmailAgent extracts sender, intent, urgency and entities from RFC 5322
// messages and formats them as CRM records.
type EmailAgent struct {
	Base
	now func() time.Time
}

// NewEmailAgent creates an email agent logging to mem
func NewEmailAgent(mem *memory.SharedMemory, opts ...Option) *EmailAgent {
	return &EmailAgent{
		Base: NewBase("email", mem, opts...),
		now:  time.Now,
	}
}

func (a *EmailAgent) Name() string { return a.Base.Name }

func (a *EmailAgent) Process(ctx context.Context, doc Document, metadata Metadata) (interface{}, error) {
	return a.ProcessEmail(ctx, doc, metadata)
}

// ProcessEmail parses and analyzes one message and logs the result
func (a *EmailAgent) ProcessEmail(ctx context.Context, doc Document, metadata Metadata) (*EmailResult, error) {
	ctx, span := a.Telemetry.StartSpan(ctx, "agent.email.process")
	defer span.End()

	result, err := a.extract(doc)
	if err == nil {
		_, err = a.LogProcessing(ctx, doc, metadata, result)
	}
	if err != nil {
		err = wrapFailure("email", err)
		span.RecordError(err)
		a.Logger.ErrorWithContext(ctx, "Email processing failed", map[string]interface{}{
			"agent_id": a.AgentID,
			"error":    err.Error(),
		})
		return nil, err
	}

	span.SetAttribute("email.intent", result.Analysis.Intent)
	span.SetAttribute("email.urgency", result.Analysis.Urgency)
	a.Telemetry.RecordMetric("docrouter.emails.processed", 1, map[string]string{
		"intent":  result.Analysis.Intent,
		"urgency": result.Analysis.Urgency,
	})
	a.Logger.InfoWithContext(ctx, "Email processed", map[string]interface{}{
		"agent_id": a.AgentID,
		"intent":   result.Analysis.Intent,
		"urgency":  result.Analysis.Urgency,
	})
	return result, nil
}

func (a *EmailAgent) extract(doc Document) (*EmailResult, error) {
	if doc.IsBinary() {
		return nil, errInvalidContent("Invalid email content")
	}

	msg, err := parseEmail(doc.Text)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(msg.From) == "" {
		return nil, errInvalidContent("Missing sender")
	}
	body, err := msg.bodyText()
	if err != nil {
		return nil, err
	}

	now := a.now()
	content := msg.Subject + " " + body
	intent := MatchIntent(content)
	urgency := DetectUrgency(content)
	entities := ExtractEntities(body)

	return &EmailResult{
		CRMData: CRMRecord{
			Contact: msg.sender(),
			Communication: Communication{
				Subject: msg.Subject,
				Date:    msg.date(now).Format(isoLayout),
				Body:    body,
			},
			Classification: EmailClassification{Intent: intent, Urgency: urgency},
			Entities:       entities,
			Metadata: CRMMetadata{
				ProcessedAt: now.Format(time.RFC3339Nano),
				AgentID:     a.AgentID,
			},
		},
		Analysis: EmailAnalysis{Intent: intent, Urgency: urgency, Entities: entities},
	}, nil
}
