package cockroach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"voxlink-backend/internal/domain"
	apperrors "voxlink-backend/pkg/errors"
)

// CallRepository handles call record storage in CockroachDB.
// All writes are single-record; status transitions are compare-and-swap on
// the current status so concurrent events resolve first-writer-wins.
type CallRepository struct {
	pool *pgxpool.Pool
}

// NewCallRepository creates a new call repository
func NewCallRepository(pool *pgxpool.Pool) *CallRepository {
	return &CallRepository{pool: pool}
}

const callColumns = `
	c.call_id, c.caller_id, c.receiver_id,
	caller.username, receiver.username,
	c.call_type, c.status, c.room_id,
	c.initiated_at, c.ringing_at, c.accepted_at, c.ended_at, c.duration
`

const callJoins = `
	JOIN users caller ON caller.user_id = c.caller_id
	JOIN users receiver ON receiver.user_id = c.receiver_id
`

func scanCall(row pgx.Row) (*domain.Call, error) {
	call := &domain.Call{}
	err := row.Scan(
		&call.CallID,
		&call.CallerID,
		&call.ReceiverID,
		&call.CallerName,
		&call.ReceiverName,
		&call.CallType,
		&call.Status,
		&call.RoomID,
		&call.InitiatedAt,
		&call.RingingAt,
		&call.AcceptedAt,
		&call.EndedAt,
		&call.Duration,
	)
	if err != nil {
		return nil, err
	}
	return call, nil
}

// Create inserts a new call record in status initiated. The room identifier
// is assigned here and is immutable for the life of the record.
func (r *CallRepository) Create(ctx context.Context, call *domain.Call) error {
	query := `
		INSERT INTO calls (
			call_id, caller_id, receiver_id, call_type, status, room_id, initiated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		call.CallID,
		call.CallerID,
		call.ReceiverID,
		call.CallType,
		call.Status,
		call.RoomID,
		call.InitiatedAt,
	)

	if err != nil {
		return apperrors.DatabaseError(fmt.Errorf("failed to create call: %w", err))
	}

	return nil
}

// Transition applies a lifecycle event as a compare-and-swap on the current
// status. If the record is no longer in a status the event is legal from,
// nothing is written and InvalidTransition is returned; the stored record is
// returned unchanged by a subsequent Get.
func (r *CallRepository) Transition(ctx context.Context, callID uuid.UUID, event domain.CallEvent, now time.Time) (*domain.Call, error) {
	target := domain.TargetStatus(event)
	legal := domain.LegalFrom(event)
	legalStrs := make([]string, len(legal))
	for i, s := range legal {
		legalStrs[i] = string(s)
	}

	var set string
	switch target {
	case domain.CallStatusRinging:
		set = "status = $2, ringing_at = $3"
	case domain.CallStatusAccepted:
		set = "status = $2, accepted_at = $3"
	case domain.CallStatusEnded:
		// Duration only exists for calls that were accepted
		set = "status = $2, ended_at = $3, duration = GREATEST(0, EXTRACT(EPOCH FROM ($3::TIMESTAMPTZ - accepted_at))::INT)"
	default:
		// rejected, cancelled, missed
		set = "status = $2, ended_at = $3"
	}

	query := fmt.Sprintf(`
		UPDATE calls
		SET %s
		WHERE call_id = $1 AND status = ANY($4)
		RETURNING call_id
	`, set)

	var updated uuid.UUID
	err := r.pool.QueryRow(ctx, query, callID, target, now, legalStrs).Scan(&updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the call does not exist or the event lost the race;
			// re-read to tell the two apart.
			current, getErr := r.GetByID(ctx, callID)
			if getErr != nil {
				return nil, getErr
			}
			return current, apperrors.InvalidTransitionError(
				fmt.Sprintf("event %q is not legal from status %q", event, current.Status))
		}
		return nil, apperrors.DatabaseError(fmt.Errorf("failed to apply %s: %w", event, err))
	}

	return r.GetByID(ctx, callID)
}

// GetByID retrieves a call by ID
func (r *CallRepository) GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	query := `SELECT ` + callColumns + ` FROM calls c ` + callJoins + ` WHERE c.call_id = $1`

	call, err := scanCall(r.pool.QueryRow(ctx, query, callID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.CallNotFoundError()
		}
		return nil, apperrors.DatabaseError(fmt.Errorf("failed to get call: %w", err))
	}

	return call, nil
}

// GetByRoomID retrieves a call by its room identifier
func (r *CallRepository) GetByRoomID(ctx context.Context, roomID string) (*domain.Call, error) {
	query := `SELECT ` + callColumns + ` FROM calls c ` + callJoins + ` WHERE c.room_id = $1`

	call, err := scanCall(r.pool.QueryRow(ctx, query, roomID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.CallNotFoundError()
		}
		return nil, apperrors.DatabaseError(fmt.Errorf("failed to get call by room: %w", err))
	}

	return call, nil
}

// ListForUser retrieves calls the user participates in, scoped by filter
func (r *CallRepository) ListForUser(ctx context.Context, userID uuid.UUID, filter domain.CallListFilter, limit int) ([]*domain.Call, error) {
	var where string
	switch filter {
	case domain.CallFilterActive:
		where = `(c.caller_id = $1 OR c.receiver_id = $1) AND c.status IN ('initiated', 'ringing', 'accepted')`
	case domain.CallFilterMissed:
		where = `c.receiver_id = $1 AND c.status = 'missed'`
	default:
		// history: everything past the initiated handshake
		where = `(c.caller_id = $1 OR c.receiver_id = $1) AND c.status <> 'initiated'`
	}

	query := `SELECT ` + callColumns + ` FROM calls c ` + callJoins + `
		WHERE ` + where + `
		ORDER BY c.initiated_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, apperrors.DatabaseError(fmt.Errorf("failed to list calls: %w", err))
	}
	defer rows.Close()

	var calls []*domain.Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, apperrors.DatabaseError(fmt.Errorf("failed to scan call: %w", err))
		}
		calls = append(calls, call)
	}

	return calls, nil
}
