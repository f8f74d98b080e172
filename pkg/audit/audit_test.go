package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskforge/deskforge/pkg/contextkeys"
)

func TestNewEvent(t *testing.T) {
	ctx := contextkeys.WithRequestID(context.Background(), "req-42")

	event := NewEvent(ctx, EventTypeRoleAssign, EventStatusSuccess)
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())
	assert.Equal(t, EventTypeRoleAssign, event.EventType)
	assert.Equal(t, EventStatusSuccess, event.Status)
	assert.Equal(t, "req-42", event.RequestID)

	other := NewEvent(ctx, EventTypeRoleAssign, EventStatusSuccess)
	assert.NotEqual(t, event.ID, other.ID)
}

func TestDenial(t *testing.T) {
	event := Denial(context.Background(), 7, "delete", "tickets", "ticket-9", "role employee has no tickets:delete grant")

	assert.Equal(t, EventTypeAccessDenied, event.EventType)
	assert.Equal(t, EventStatusDenied, event.Status)
	require.NotNil(t, event.ActorID)
	assert.Equal(t, int64(7), *event.ActorID)
	assert.Equal(t, "delete", event.Action)
	assert.Equal(t, "tickets", event.Resource)
	assert.Equal(t, "ticket-9", event.ResourceID)
	assert.False(t, event.Success)
	assert.Equal(t, "role employee has no tickets:delete grant", event.Reason)
}

func TestEventJSONRoundTrip(t *testing.T) {
	actor := int64(3)
	event := &Event{
		ID:        "abc",
		Timestamp: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		EventType: EventTypeTeamAssign,
		Status:    EventStatusSuccess,
		ActorID:   &actor,
		Success:   true,
		Metadata:  map[string]interface{}{"new_team_id": float64(10)},
	}

	data, err := event.ToJSON()
	require.NoError(t, err)

	parsed, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, event, parsed)
}

type stubLogger struct {
	logged   int
	closed   bool
	logErr   error
	closeErr error
}

func (s *stubLogger) Log(ctx context.Context, event *Event) error {
	s.logged++
	return s.logErr
}

func (s *stubLogger) Close() error {
	s.closed = true
	return s.closeErr
}

func TestMultiLoggerFansOut(t *testing.T) {
	a := &stubLogger{}
	b := &stubLogger{}
	multi := NewMultiLogger(a, b)

	require.NoError(t, multi.Log(context.Background(), NewEvent(context.Background(), EventTypePermissionCheck, EventStatusSuccess)))
	assert.Equal(t, 1, a.logged)
	assert.Equal(t, 1, b.logged)

	require.NoError(t, multi.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestMultiLoggerCollectsErrors(t *testing.T) {
	failing := &stubLogger{logErr: errors.New("sink down")}
	healthy := &stubLogger{}
	multi := NewMultiLogger(failing, healthy)

	err := multi.Log(context.Background(), NewEvent(context.Background(), EventTypeAccessDenied, EventStatusDenied))
	assert.ErrorContains(t, err, "sink down")
	assert.Equal(t, 1, healthy.logged, "one failing sink must not starve the others")
}

func TestNopLogger(t *testing.T) {
	var l Logger = NopLogger{}
	assert.NoError(t, l.Log(context.Background(), &Event{}))
	assert.NoError(t, l.Close())
}

func TestFromContext(t *testing.T) {
	sink := &stubLogger{}
	ctx := WithLogger(context.Background(), sink)

	assert.Same(t, Logger(sink), FromContext(ctx))
	assert.IsType(t, NopLogger{}, FromContext(context.Background()))
}

func newDBLoggerForTest(t *testing.T) (*DBLogger, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_events").
		WillReturnResult(sqlmock.NewResult(0, 0))

	logger, err := NewDBLogger(db)
	require.NoError(t, err)
	return logger, mock
}

func TestDBLoggerLog(t *testing.T) {
	logger, mock := newDBLoggerForTest(t)

	actor, target := int64(1), int64(3)
	event := NewEvent(context.Background(), EventTypeRoleAssign, EventStatusSuccess)
	event.ActorID = &actor
	event.TargetID = &target
	event.Action = "assign"
	event.Resource = "roles"
	event.Success = true
	event.Metadata = map[string]interface{}{"old_role": "employee"}

	mock.ExpectExec("INSERT INTO audit_events").
		WithArgs(
			event.ID, event.Timestamp, event.EventType, event.Status,
			actor, target,
			"assign", "roles", "",
			true, "", "", []byte(`{"old_role":"employee"}`),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, logger.Log(context.Background(), event))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLoggerSearch(t *testing.T) {
	logger, mock := newDBLoggerForTest(t)

	status := EventStatusDenied
	actor := int64(3)
	filter := SearchFilter{
		ActorID:    &actor,
		EventTypes: []EventType{EventTypeAccessDenied},
		Status:     &status,
		Limit:      10,
	}

	rows := sqlmock.NewRows([]string{
		"id", "timestamp", "event_type", "status", "actor_id", "target_id",
		"action", "resource", "resource_id", "success", "reason", "request_id", "metadata",
	}).AddRow(
		"evt-1", time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC), string(EventTypeAccessDenied), string(EventStatusDenied),
		int64(3), nil,
		"delete", "tickets", nil, false, "role employee has no tickets:delete grant", "req-1", []byte(`{"k":"v"}`),
	)

	mock.ExpectQuery("SELECT id, timestamp, event_type").
		WithArgs(actor, pq.Array([]string{string(EventTypeAccessDenied)}), string(status), 10).
		WillReturnRows(rows)

	events, err := logger.Search(context.Background(), filter)
	require.NoError(t, err)
	require.Len(t, events, 1)

	event := events[0]
	assert.Equal(t, "evt-1", event.ID)
	assert.Equal(t, EventTypeAccessDenied, event.EventType)
	require.NotNil(t, event.ActorID)
	assert.Equal(t, int64(3), *event.ActorID)
	assert.Nil(t, event.TargetID)
	assert.Equal(t, "delete", event.Action)
	assert.Empty(t, event.ResourceID)
	assert.Equal(t, "req-1", event.RequestID)
	assert.Equal(t, map[string]interface{}{"k": "v"}, event.Metadata)
}

func TestDBLoggerSearchClampsLimit(t *testing.T) {
	logger, mock := newDBLoggerForTest(t)

	mock.ExpectQuery("SELECT id, timestamp, event_type").
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "timestamp", "event_type", "status", "actor_id", "target_id",
			"action", "resource", "resource_id", "success", "reason", "request_id", "metadata",
		}))

	events, err := logger.Search(context.Background(), SearchFilter{Limit: 100000})
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewDBLoggerRequiresDB(t *testing.T) {
	_, err := NewDBLogger(nil)
	assert.Error(t, err)
}
