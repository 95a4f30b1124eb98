package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultAppendAttempts = 3

// PgxPool is the subset of pgxpool.Pool the turn ledger needs.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Turn is one persisted exchange.
type Turn struct {
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	TurnIndex int       `json:"turn_index"`
	Utterance string    `json:"utterance"`
	Decision  Decision  `json:"decision"`
	CreatedAt time.Time `json:"created_at"`
}

// TurnStore is the append-only, per-session turn ledger in Postgres.
type TurnStore struct {
	pool     PgxPool
	attempts int
	tracer   trace.Tracer
}

func NewTurnStore(pool PgxPool, attempts int) *TurnStore {
	if pool == nil {
		panic("conversation: turn store pool cannot be nil")
	}
	if attempts <= 0 {
		attempts = defaultAppendAttempts
	}
	return &TurnStore{
		pool:     pool,
		attempts: attempts,
		tracer:   otel.Tracer("ersim.internal.conversation.turns"),
	}
}

// appendTurnSQL claims MAX+1 and inserts in one statement. A concurrent
// writer that claimed the same index makes this insert a no-op and no row
// comes back.
const appendTurnSQL = `
	INSERT INTO sim_conversation_turns (user_id, session_id, turn_index, utterance_text, decision_json)
	SELECT $1::text, $2::text, COALESCE(MAX(turn_index), -1) + 1, $3::text, $4::jsonb
	FROM sim_conversation_turns
	WHERE user_id = $1 AND session_id = $2
	ON CONFLICT (user_id, session_id, turn_index) DO NOTHING
	RETURNING turn_index
`

// Append stores the turn at the next index for (user, session) and returns
// that index. Indices start at 0 and have no gaps.
func (s *TurnStore) Append(ctx context.Context, userID, sessionID, utterance string, decision Decision) (int, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.append_turn")
	defer span.End()

	payload, err := json.Marshal(decision)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("conversation: encode decision: %w", err)
	}

	for attempt := 1; attempt <= s.attempts; attempt++ {
		var index int
		err := s.pool.QueryRow(ctx, appendTurnSQL, userID, sessionID, utterance, string(payload)).Scan(&index)
		if err == nil {
			span.SetAttributes(attribute.Int("ersim.turn_index", index), attribute.Int("ersim.attempts", attempt))
			return index, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			span.RecordError(err)
			return 0, fmt.Errorf("conversation: append turn: %w", err)
		}
	}
	span.RecordError(ErrTurnConflict)
	return 0, fmt.Errorf("%w: session %s after %d attempts", ErrTurnConflict, sessionID, s.attempts)
}

// LoadContext returns the most recent maxTurns turns, oldest first, as chat
// messages: the learner's utterance followed by the stored reply when present.
func (s *TurnStore) LoadContext(ctx context.Context, userID, sessionID string, maxTurns int) ([]ChatMessage, error) {
	if maxTurns <= 0 {
		return nil, nil
	}
	ctx, span := s.tracer.Start(ctx, "conversation.load_context")
	defer span.End()

	query := `
		SELECT utterance_text, decision_json
		FROM (
			SELECT turn_index, utterance_text, decision_json
			FROM sim_conversation_turns
			WHERE user_id = $1 AND session_id = $2
			ORDER BY turn_index DESC
			LIMIT $3
		) recent
		ORDER BY turn_index ASC
	`
	rows, err := s.pool.Query(ctx, query, userID, sessionID, maxTurns)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: load context: %w", err)
	}
	defer rows.Close()

	var messages []ChatMessage
	for rows.Next() {
		var (
			utterance string
			raw       []byte
		)
		if err := rows.Scan(&utterance, &raw); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("conversation: scan turn: %w", err)
		}
		messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: utterance})
		if reply := storedReply(raw); reply != "" {
			messages = append(messages, ChatMessage{Role: ChatRoleAssistant, Content: reply})
		}
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: iterate turns: %w", err)
	}
	span.SetAttributes(attribute.Int("ersim.context_messages", len(messages)))
	return messages, nil
}

// ListTurns returns every turn of a session in index order.
func (s *TurnStore) ListTurns(ctx context.Context, userID, sessionID string) ([]Turn, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.list_turns")
	defer span.End()

	query := `
		SELECT user_id, session_id, turn_index, utterance_text, decision_json, created_at
		FROM sim_conversation_turns
		WHERE user_id = $1 AND session_id = $2
		ORDER BY turn_index ASC
	`
	rows, err := s.pool.Query(ctx, query, userID, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: list turns: %w", err)
	}
	defer rows.Close()

	turns := []Turn{}
	for rows.Next() {
		var (
			t   Turn
			raw []byte
		)
		if err := rows.Scan(&t.UserID, &t.SessionID, &t.TurnIndex, &t.Utterance, &raw, &t.CreatedAt); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("conversation: scan turn: %w", err)
		}
		if err := json.Unmarshal(raw, &t.Decision); err != nil {
			// Rows written before the decision shape settled keep only their reply text.
			t.Decision = Decision{SpeechOutput: storedReply(raw)}
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: iterate turns: %w", err)
	}
	return turns, nil
}

// storedReply extracts the spoken reply from a stored decision, accepting the
// older assistant_text field.
func storedReply(raw []byte) string {
	var stored struct {
		SpeechOutput  any `json:"speech_output"`
		AssistantText any `json:"assistant_text"`
	}
	if err := json.Unmarshal(raw, &stored); err != nil {
		return ""
	}
	if s, ok := stored.SpeechOutput.(string); ok && s != "" {
		return s
	}
	if s, ok := stored.AssistantText.(string); ok {
		return s
	}
	return ""
}
