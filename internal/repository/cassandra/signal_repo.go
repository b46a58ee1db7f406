package cassandra

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"voxlink-backend/internal/domain"
)

// SignalRepository handles the append-only signaling audit log in Cassandra.
// Partitioned by call_id; every relayed offer/answer/candidate is one row.
type SignalRepository struct {
	session *gocql.Session
}

// NewSignalRepository creates a new SignalRepository
func NewSignalRepository(session *gocql.Session) *SignalRepository {
	return &SignalRepository{session: session}
}

// Save appends one relayed signal to the log
func (r *SignalRepository) Save(signal *domain.CallSignal) error {
	if signal.SignalID == uuid.Nil {
		signal.SignalID = uuid.New()
	}
	if signal.CreatedAt.IsZero() {
		signal.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO call_signals (
			call_id, signal_id, signal_type, sender_id, payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	err := r.session.Query(query,
		signal.CallID,
		signal.SignalID,
		signal.SignalType,
		signal.SenderID,
		signal.Payload,
		signal.CreatedAt,
	).Exec()

	if err != nil {
		return fmt.Errorf("failed to save signal: %w", err)
	}

	return nil
}

// GetByCall retrieves the signal log for a call with cursor-based pagination
func (r *SignalRepository) GetByCall(callID uuid.UUID, limit int, pageState []byte) ([]*domain.CallSignal, []byte, error) {
	query := `
		SELECT call_id, signal_id, signal_type, sender_id, payload, created_at
		FROM call_signals
		WHERE call_id = ?
		LIMIT ?
	`

	iter := r.session.Query(query, callID, limit).PageState(pageState).Iter()
	defer iter.Close()

	var signals []*domain.CallSignal

	for {
		signal := &domain.CallSignal{}
		if !iter.Scan(
			&signal.CallID,
			&signal.SignalID,
			&signal.SignalType,
			&signal.SenderID,
			&signal.Payload,
			&signal.CreatedAt,
		) {
			break
		}
		signals = append(signals, signal)
	}

	if err := iter.Close(); err != nil {
		return nil, nil, fmt.Errorf("failed to fetch signals: %w", err)
	}

	nextPageState := iter.PageState()

	return signals, nextPageState, nil
}
