package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfman30/ersim-ai-platform/internal/cases"
	"github.com/wolfman30/ersim-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/ersim-ai-platform/pkg/logging"
)

const defaultHistoryTurns = 10

// Turn outcomes recorded on the turns metric.
const (
	outcomeOK       = "ok"
	outcomeInvalid  = "invalid"
	outcomeUpstream = "upstream_error"
	outcomeConflict = "conflict"
	outcomeError    = "error"
)

// PrimerSource builds the case context for a turn.
type PrimerSource interface {
	Build(ctx context.Context, caseID string) (cases.Primer, error)
}

// TurnLedger persists turns and replays recent ones.
type TurnLedger interface {
	Append(ctx context.Context, userID, sessionID, utterance string, decision Decision) (int, error)
	LoadContext(ctx context.Context, userID, sessionID string, maxTurns int) ([]ChatMessage, error)
	ListTurns(ctx context.Context, userID, sessionID string) ([]Turn, error)
}

// Decider produces a normalized decision for one turn.
type Decider interface {
	Decide(ctx context.Context, in ReasoningInput) (Decision, error)
}

// RespondRequest is one learner utterance.
type RespondRequest struct {
	UserID    string `json:"-"`
	SessionID string `json:"session_id"`
	CaseID    string `json:"case_id"`
	Utterance string `json:"utterance"`

	// BeforeCommit, when set, runs after reasoning and before the turn is
	// appended. An error discards the turn.
	BeforeCommit func(ctx context.Context, decision Decision) error `json:"-"`
}

// TurnResponse is what the frontend receives for a turn.
type TurnResponse struct {
	SessionID           string            `json:"session_id"`
	CaseID              string            `json:"case_id"`
	TurnIndex           int               `json:"turn_index"`
	SpeechOutput        string            `json:"speech_output"`
	ActionTriggers      []ActionTrigger   `json:"action_triggers"`
	UIUpdates           map[string]any    `json:"ui_updates"`
	AdvancePatientState *string           `json:"advance_patient_state"`
	UpdateVitals        *VitalsTransition `json:"update_vitals"`
	PatientVoice        *string           `json:"patient_voice"`
	Hint                *string           `json:"hint"`
}

// Orchestrator runs a turn end to end: primer, history, reasoning, ledger.
type Orchestrator struct {
	primers      PrimerSource
	ledger       TurnLedger
	decider      Decider
	historyTurns int
	logger       *logging.Logger
	metrics      *metrics.SimMetrics
}

// OrchestratorConfig holds the optional knobs of an Orchestrator.
type OrchestratorConfig struct {
	HistoryTurns int
	Metrics      *metrics.SimMetrics
}

func NewOrchestrator(primers PrimerSource, ledger TurnLedger, decider Decider, cfg OrchestratorConfig, logger *logging.Logger) *Orchestrator {
	if primers == nil || ledger == nil || decider == nil {
		panic("conversation: orchestrator dependencies cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = defaultHistoryTurns
	}
	return &Orchestrator{
		primers:      primers,
		ledger:       ledger,
		decider:      decider,
		historyTurns: cfg.HistoryTurns,
		logger:       logger,
		metrics:      cfg.Metrics,
	}
}

// NewSessionID mints a session id: 32 lowercase hex characters.
func NewSessionID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// Respond handles one utterance. Nothing is persisted when reasoning or the
// BeforeCommit hook fails.
func (o *Orchestrator) Respond(ctx context.Context, req RespondRequest) (*TurnResponse, error) {
	caseID := strings.TrimSpace(req.CaseID)
	utterance := strings.TrimSpace(req.Utterance)
	if caseID == "" || utterance == "" {
		o.metrics.ObserveTurn(outcomeInvalid)
		return nil, fmt.Errorf("%w: case_id and utterance are required", ErrInvalidInput)
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	log := o.logger.With("session_id", sessionID, "case_id", caseID, "user_id", req.UserID)

	primer, err := o.primers.Build(ctx, caseID)
	if err != nil {
		o.metrics.ObserveTurn(outcomeError)
		return nil, fmt.Errorf("conversation: build primer: %w", err)
	}
	if primer.Fallback {
		log.Warn("case not found; using fallback primer")
	}

	history, err := o.ledger.LoadContext(ctx, req.UserID, sessionID, o.historyTurns)
	if err != nil {
		o.metrics.ObserveTurn(outcomeError)
		return nil, err
	}

	decision, err := o.decider.Decide(ctx, ReasoningInput{
		Utterance:          utterance,
		Primer:             primer,
		AvailableResources: primer.AvailableResources,
		History:            history,
	})
	if err != nil {
		o.metrics.ObserveTurn(outcomeUpstream)
		return nil, err
	}

	if req.BeforeCommit != nil {
		if err := req.BeforeCommit(ctx, decision); err != nil {
			o.metrics.ObserveTurn(outcomeError)
			log.Warn("turn discarded before commit", "error", err)
			return nil, fmt.Errorf("conversation: turn not recorded: %w", err)
		}
	}

	index, err := o.ledger.Append(ctx, req.UserID, sessionID, utterance, decision)
	if err != nil {
		if errors.Is(err, ErrTurnConflict) {
			o.metrics.ObserveTurn(outcomeConflict)
		} else {
			o.metrics.ObserveTurn(outcomeError)
		}
		log.Error("failed to persist turn", "error", err)
		return nil, err
	}
	o.metrics.ObserveTurn(outcomeOK)
	log.Info("turn recorded", "turn_index", index, "triggers", len(decision.ActionTriggers))

	return newTurnResponse(sessionID, caseID, index, decision), nil
}

// Transcript returns the stored turns of a session.
func (o *Orchestrator) Transcript(ctx context.Context, userID, sessionID string) ([]Turn, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: session_id is required", ErrInvalidInput)
	}
	return o.ledger.ListTurns(ctx, userID, sessionID)
}

// Primer previews the case context a turn would use.
func (o *Orchestrator) Primer(ctx context.Context, caseID string) (cases.Primer, error) {
	if strings.TrimSpace(caseID) == "" {
		return cases.Primer{}, fmt.Errorf("%w: case_id is required", ErrInvalidInput)
	}
	return o.primers.Build(ctx, caseID)
}

func newTurnResponse(sessionID, caseID string, index int, d Decision) *TurnResponse {
	triggers := d.ActionTriggers
	if triggers == nil {
		triggers = []ActionTrigger{}
	}
	ui := d.UIUpdates
	if ui == nil {
		ui = map[string]any{}
	}
	return &TurnResponse{
		SessionID:           sessionID,
		CaseID:              caseID,
		TurnIndex:           index,
		SpeechOutput:        d.SpeechOutput,
		ActionTriggers:      triggers,
		UIUpdates:           ui,
		AdvancePatientState: d.AdvancePatientState,
		UpdateVitals:        d.UpdateVitals,
		PatientVoice:        d.PatientVoice,
		Hint:                d.Hint,
	}
}
