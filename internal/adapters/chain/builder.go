package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/eleven-am/warden/internal/domain"
	json "github.com/eleven-am/warden/internal/xjson"
)

const schemaVersion = "1.0.0"

// Builder projects steps and events into two independently hash-linked
// record sequences. Hashes are deterministic over (type, id, body,
// prev_hash), so rebuilding from identical inputs reproduces the chain
// exactly and any mutation breaks the linkage.
type Builder struct {
	logger *slog.Logger
}

func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{logger: logger.With("component", "chain")}
}

func (b *Builder) Build(steps []domain.Step, events []domain.Event, run *domain.Run) *domain.Chain {
	ordered := make([]domain.Step, len(steps))
	copy(ordered, steps)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	orderedEvents := make([]domain.Event, len(events))
	copy(orderedEvents, events)
	sort.SliceStable(orderedEvents, func(i, j int) bool { return orderedEvents[i].Seq < orderedEvents[j].Seq })

	chain := &domain.Chain{RunID: run.ID}

	prev := ""
	for _, step := range ordered {
		record := b.stepRecord(step, run, prev)
		chain.Steps = append(chain.Steps, record)
		prev = record.Hash
	}

	prev = ""
	for _, event := range orderedEvents {
		record := b.eventRecord(event, run, prev)
		chain.Events = append(chain.Events, record)
		prev = record.Hash
	}

	return chain
}

func (b *Builder) stepRecord(step domain.Step, run *domain.Run, prevHash string) domain.AtomicRecord {
	body := map[string]interface{}{
		"run_id":  step.RunID,
		"node_id": step.NodeID,
		"status":  string(step.Status),
	}
	if step.Input != nil {
		body["input"] = step.Input
	}
	if step.Output != nil {
		body["output"] = step.Output
	}

	when := run.CreatedAt
	if step.StartedAt != nil {
		when = *step.StartedAt
	}

	status := modeStatus(run.Mode)
	if step.Status == domain.StepStatusFailed {
		status = domain.RecordStatusDeny
	}

	record := domain.AtomicRecord{
		Type: fmt.Sprintf("step.%s@%s", step.Type, schemaVersion),
		ID:   step.ID,
		Body: body,
		Meta: domain.RecordMeta{Header: domain.RecordHeader{
			Who:    stepActor(step),
			Did:    stepAction(step),
			This:   step.NodeID,
			When:   when,
			Status: status,
		}},
		PrevHash: prevHash,
	}
	record.Hash = computeHash(record.Type, record.ID, body, prevHash)
	return record
}

func (b *Builder) eventRecord(event domain.Event, run *domain.Run, prevHash string) domain.AtomicRecord {
	status := modeStatus(run.Mode)
	switch event.Kind {
	case domain.EventRunFailed, domain.EventStepFailed, domain.EventError:
		status = domain.RecordStatusDeny
	}

	this := event.RunID
	if event.StepID != "" {
		this = event.StepID
	}

	record := domain.AtomicRecord{
		Type: fmt.Sprintf("event.%s@%s", event.Kind, schemaVersion),
		ID:   event.ID,
		Body: event.Payload,
		Meta: domain.RecordMeta{Header: domain.RecordHeader{
			Who:    eventActor(event),
			Did:    eventAction(event.Kind),
			This:   this,
			When:   event.TS,
			Status: status,
		}},
		PrevHash: prevHash,
	}
	record.Hash = computeHash(record.Type, record.ID, event.Payload, prevHash)
	return record
}

// Render produces the LLM-readable summary that grounds routing prompts in
// verifiable history: actor, action, timestamp, outcome and chain linkage
// per record.
func (b *Builder) Render(chain *domain.Chain) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Execution history for run %s (hash-linked, append-only):\n", chain.RunID)

	if len(chain.Steps) > 0 {
		sb.WriteString("\nSteps:\n")
		for i, record := range chain.Steps {
			renderRecord(&sb, i, record)
		}
	}
	if len(chain.Events) > 0 {
		sb.WriteString("\nEvents:\n")
		for i, record := range chain.Events {
			renderRecord(&sb, i, record)
		}
	}

	return sb.String()
}

func renderRecord(sb *strings.Builder, index int, record domain.AtomicRecord) {
	link := "chain start"
	if record.PrevHash != "" {
		link = "links to " + shortHash(record.PrevHash)
	}
	fmt.Fprintf(sb, "%d. [%s] %s %s %s — outcome %s, record %s (%s)\n",
		index+1,
		record.Meta.Header.When.Format(time.RFC3339),
		record.Meta.Header.Who,
		record.Meta.Header.Did,
		record.Meta.Header.This,
		record.Meta.Header.Status,
		shortHash(record.Hash),
		link)
}

// Verify recomputes a record's hash against a claimed predecessor hash.
func (b *Builder) Verify(record *domain.AtomicRecord, prevHash string) bool {
	return computeHash(record.Type, record.ID, record.Body, prevHash) == record.Hash
}

func computeHash(recordType, id string, body map[string]interface{}, prevHash string) string {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		bodyBytes = []byte("{}")
	}

	h := sha256.New()
	h.Write([]byte(recordType))
	h.Write([]byte{'|'})
	h.Write([]byte(id))
	h.Write([]byte{'|'})
	h.Write(bodyBytes)
	h.Write([]byte{'|'})
	h.Write([]byte(prevHash))
	return hex.EncodeToString(h.Sum(nil))
}

func modeStatus(mode domain.RunMode) domain.RecordStatus {
	if mode == domain.RunModeAuto {
		return domain.RecordStatusApprove
	}
	return domain.RecordStatusReview
}

func stepActor(step domain.Step) string {
	if id, ok := stringField(step.Input, "agent_id"); ok {
		return id
	}
	if id, ok := stringField(step.Input, "tool_id"); ok {
		return id
	}
	if step.Type != "" {
		return string(step.Type)
	}
	return "system"
}

func eventActor(event domain.Event) string {
	if id, ok := stringField(event.Payload, "agent_id"); ok {
		return id
	}
	if id, ok := stringField(event.Payload, "tool_id"); ok {
		return id
	}
	return "system"
}

func stepAction(step domain.Step) string {
	switch step.Status {
	case domain.StepStatusCompleted:
		return "executed node"
	case domain.StepStatusFailed:
		return "failed at node"
	case domain.StepStatusRunning:
		return "is executing node"
	case domain.StepStatusSkipped:
		return "skipped node"
	default:
		return "awaits approval at node"
	}
}

func eventAction(kind domain.EventKind) string {
	switch kind {
	case domain.EventRunStarted:
		return "started run"
	case domain.EventRunCompleted:
		return "completed run"
	case domain.EventRunFailed:
		return "failed run"
	case domain.EventStepStarted:
		return "started step"
	case domain.EventStepCompleted:
		return "completed step"
	case domain.EventStepFailed:
		return "failed step"
	case domain.EventToolCall:
		return "called tool in"
	case domain.EventLLMCall:
		return "invoked model in"
	case domain.EventPolicyEval:
		return "evaluated policy for"
	default:
		return "recorded error in"
	}
}

func shortHash(hash string) string {
	if len(hash) <= 8 {
		return hash
	}
	return hash[:8]
}

func stringField(m map[string]interface{}, key string) (string, bool) {
	if m == nil {
		return "", false
	}
	s, ok := m[key].(string)
	return s, ok && s != ""
}
