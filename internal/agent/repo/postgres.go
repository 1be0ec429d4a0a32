package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/deal-associate/server/internal/agent/model"
	errx "github.com/deal-associate/server/internal/core/error"
	logx "github.com/deal-associate/server/pkg/logger"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS deal_sessions (
	session_id  TEXT PRIMARY KEY,
	state       JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS deal_messages (
	id          BIGSERIAL PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES deal_sessions(session_id) ON DELETE CASCADE,
	role        TEXT NOT NULL,
	text        TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS deal_messages_session_idx ON deal_messages(session_id, id);
`

const (
	selectStateSQL    = `SELECT state FROM deal_sessions WHERE session_id = $1`
	selectMessagesSQL = `SELECT role, text FROM deal_messages WHERE session_id = $1 ORDER BY id`
	upsertStateSQL    = `INSERT INTO deal_sessions (session_id, state, updated_at) VALUES ($1, $2, now())
ON CONFLICT (session_id) DO UPDATE SET state = EXCLUDED.state, updated_at = now()`
	insertMessageSQL = `INSERT INTO deal_messages (session_id, role, text) VALUES ($1, $2, $3)`
	deleteSessionSQL = `DELETE FROM deal_sessions WHERE session_id = $1`
)

// PostgresDealRepository keeps the snapshot as JSONB and the transcript as
// an append-only table.
type PostgresDealRepository struct {
	db *sqlx.DB
}

func NewPostgresDealRepository(db *sqlx.DB) *PostgresDealRepository {
	return &PostgresDealRepository{db: db}
}

// EnsureSchema creates the tables if they do not exist.
func (r *PostgresDealRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaDDL); err != nil {
		logx.Error().Err(err).Msg("failed to create deal schema")
		return errx.WrapPostgres(err)
	}
	return nil
}

func (r *PostgresDealRepository) Load(ctx context.Context, sessionID string) (*model.DealState, error) {
	var raw []byte
	if err := r.db.GetContext(ctx, &raw, selectStateSQL, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errx.ErrSessionNotFound
		}
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to load deal state")
		return nil, errx.WrapPostgres(err)
	}

	var state model.DealState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("unmarshal deal state: %w", err)
	}

	var msgs []model.Message
	if err := r.db.SelectContext(ctx, &msgs, selectMessagesSQL, sessionID); err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to load transcript")
		return nil, errx.WrapPostgres(err)
	}
	state.Transcript = msgs
	state.SessionID = sessionID
	return &state, nil
}

func (r *PostgresDealRepository) Save(ctx context.Context, state *model.DealState, appended []model.Message) (err error) {
	snapshot := *state
	snapshot.Transcript = nil
	b, err := json.Marshal(&snapshot)
	if err != nil {
		return fmt.Errorf("marshal deal state: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errx.WrapPostgres(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, upsertStateSQL, state.SessionID, b); err != nil {
		logx.Error().Err(err).Str("session_id", state.SessionID).Msg("failed to upsert deal state")
		return errx.WrapPostgres(err)
	}
	for _, m := range appended {
		if _, err = tx.ExecContext(ctx, insertMessageSQL, state.SessionID, string(m.Role), m.Text); err != nil {
			logx.Error().Err(err).Str("session_id", state.SessionID).Msg("failed to append message")
			return errx.WrapPostgres(err)
		}
	}
	if err = tx.Commit(); err != nil {
		return errx.WrapPostgres(err)
	}
	return nil
}

func (r *PostgresDealRepository) Delete(ctx context.Context, sessionID string) error {
	if _, err := r.db.ExecContext(ctx, deleteSessionSQL, sessionID); err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to delete deal session")
		return errx.WrapPostgres(err)
	}
	return nil
}

var _ model.DealRepository = (*PostgresDealRepository)(nil)
