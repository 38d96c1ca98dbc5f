package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pgTestChatID int64 = 42

var selectColumns = []string{
	"chat_id", "username", "authenticated", "created_at", "last_active_at",
}

func sessionRow(authenticated bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(selectColumns).
		AddRow(pgTestChatID, "alice", authenticated, now, now)
}

func TestEnsure_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)

	mock.ExpectQuery("INSERT INTO sessions").
		WithArgs(pgTestChatID, "alice", sqlmock.AnyArg()).
		WillReturnRows(sessionRow(false))

	sess, err := store.Ensure(context.Background(), pgTestChatID, "alice")
	require.NoError(t, err)
	assert.Equal(t, pgTestChatID, sess.ChatID)
	assert.Equal(t, "alice", sess.Username)
	assert.False(t, sess.Authenticated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsure_DBError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)

	mock.ExpectQuery("INSERT INTO sessions").
		WillReturnError(errors.New("connection refused"))

	_, err = store.Ensure(context.Background(), pgTestChatID, "alice")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ensuring session")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_Found(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)

	mock.ExpectQuery("SELECT (.+) FROM sessions").
		WithArgs(pgTestChatID).
		WillReturnRows(sessionRow(true))

	sess, err := store.Get(context.Background(), pgTestChatID)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.True(t, sess.Authenticated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)

	mock.ExpectQuery("SELECT (.+) FROM sessions").
		WithArgs(pgTestChatID).
		WillReturnRows(sqlmock.NewRows(selectColumns))

	sess, err := store.Get(context.Background(), pgTestChatID)
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetAuthenticated(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)

	mock.ExpectExec("UPDATE sessions SET authenticated").
		WithArgs(pgTestChatID, true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.SetAuthenticated(context.Background(), pgTestChatID, true)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTouch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)

	mock.ExpectExec("UPDATE sessions SET last_active_at").
		WithArgs(pgTestChatID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.Touch(context.Background(), pgTestChatID)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)

	now := time.Now()
	rows := sqlmock.NewRows(selectColumns).
		AddRow(int64(1), "a", true, now, now).
		AddRow(int64(2), "b", false, now, now)

	mock.ExpectQuery("SELECT (.+) FROM sessions").
		WillReturnRows(rows)

	sessions, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.True(t, sessions[0].Authenticated)
	assert.NoError(t, mock.ExpectationsWereMet())
}
