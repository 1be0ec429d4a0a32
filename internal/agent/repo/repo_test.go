package repo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deal-associate/server/internal/agent/model"
	errx "github.com/deal-associate/server/internal/core/error"
	"github.com/deal-associate/server/internal/underwriting"
)

func sampleState() *model.DealState {
	s := model.NewDealState("s1")
	s.Transcript = []model.Message{model.UserMessage("start"), model.AssistantMessage("Starting data ingestion process...")}
	s.Comps = []underwriting.Comp{{Name: "Comp A", Rent: 82, Yield: 0.045}}
	s.Assumptions = underwriting.Assumptions{"exit_yield": 0.05}
	s.CurrentStep = model.ActionComps
	s.Status = model.Suspended(model.StepAwaitCompsReview)
	return s
}

func TestMemoryDealRepository(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryDealRepository()

	_, err := r.Load(ctx, "s1")
	assert.ErrorIs(t, err, errx.ErrSessionNotFound)

	s := sampleState()
	require.NoError(t, r.Save(ctx, s, s.Transcript))

	s.Comps[0].Name = "mutated"
	got, err := r.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Comp A", got.Comps[0].Name)
	assert.Len(t, got.Transcript, 2)

	require.NoError(t, r.Delete(ctx, "s1"))
	_, err = r.Load(ctx, "s1")
	assert.ErrorIs(t, err, errx.ErrSessionNotFound)
}

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisDealRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newMiniRedis(t)
	r := NewRedisDealRepository(rdb, "test", time.Hour)

	_, err := r.Load(ctx, "s1")
	assert.ErrorIs(t, err, errx.ErrSessionNotFound)

	s := sampleState()
	require.NoError(t, r.Save(ctx, s, s.Transcript))

	next := model.AssistantMessage("Would you like to proceed to financial assumptions?")
	s.Transcript = append(s.Transcript, next)
	require.NoError(t, r.Save(ctx, s, []model.Message{next}))

	got, err := r.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, s.Transcript, got.Transcript)
	assert.Equal(t, model.ActionComps, got.CurrentStep)
	assert.True(t, got.Status.IsSuspendedAt(model.StepAwaitCompsReview))
	assert.InDelta(t, 0.05, got.Assumptions["exit_yield"], 1e-9)

	assert.Equal(t, time.Hour, mr.TTL("test:session:s1:state"))
	assert.Equal(t, time.Hour, mr.TTL("test:session:s1:transcript"))

	// The snapshot never duplicates the transcript.
	raw, err := mr.Get("test:session:s1:state")
	require.NoError(t, err)
	var stored map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Nil(t, stored["transcript"])

	require.NoError(t, r.Delete(ctx, "s1"))
	assert.False(t, mr.Exists("test:session:s1:state"))
	assert.False(t, mr.Exists("test:session:s1:transcript"))
}

func TestRedisDealRepository_LoadFailure(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	r := NewRedisDealRepository(rdb, "", time.Hour)

	mock.ExpectGet("deal:session:s1:state").SetErr(errors.New("connection refused"))

	_, err := r.Load(context.Background(), "s1")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, errx.StatusOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisDealRepository_DeleteFailure(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	r := NewRedisDealRepository(rdb, "deal", 0)

	mock.ExpectDel("deal:session:s1:state", "deal:session:s1:transcript").SetErr(errors.New("timeout"))

	err := r.Delete(context.Background(), "s1")
	require.Error(t, err)
	assert.Equal(t, errx.RedisErrorMessage, errx.MessageOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func newSQLMock(t *testing.T) (*PostgresDealRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresDealRepository(sqlx.NewDb(db, "postgres")), mock
}

func TestPostgresDealRepository_Load(t *testing.T) {
	r, mock := newSQLMock(t)

	snapshot := sampleState()
	snapshot.Transcript = nil
	raw, err := json.Marshal(snapshot)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(selectStateSQL)).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow(raw))
	mock.ExpectQuery(regexp.QuoteMeta(selectMessagesSQL)).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"role", "text"}).
			AddRow("user", "start").
			AddRow("assistant", "Starting data ingestion process..."))

	got, err := r.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, []model.Message{
		model.UserMessage("start"),
		model.AssistantMessage("Starting data ingestion process..."),
	}, got.Transcript)
	assert.Equal(t, "Comp A", got.Comps[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDealRepository_LoadNotFound(t *testing.T) {
	r, mock := newSQLMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(selectStateSQL)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"state"}))

	_, err := r.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, errx.ErrSessionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDealRepository_Save(t *testing.T) {
	r, mock := newSQLMock(t)
	s := sampleState()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(upsertStateSQL)).
		WithArgs("s1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertMessageSQL)).
		WithArgs("s1", "user", "start").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertMessageSQL)).
		WithArgs("s1", "assistant", "Starting data ingestion process...").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, r.Save(context.Background(), s, s.Transcript))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDealRepository_SaveRollsBack(t *testing.T) {
	r, mock := newSQLMock(t)
	s := sampleState()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(upsertStateSQL)).
		WithArgs("s1", sqlmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := r.Save(context.Background(), s, s.Transcript)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, errx.StatusOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDealRepository_Delete(t *testing.T) {
	r, mock := newSQLMock(t)

	mock.ExpectExec(regexp.QuoteMeta(deleteSessionSQL)).
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.Delete(context.Background(), "s1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
