package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_RecordLiftsTags(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := NewService(db)

	mock.ExpectExec("INSERT INTO audit_events").
		WithArgs(sqlmock.AnyArg(), "new_lead", "lead-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = svc.Record(context.Background(), "new_lead", "lead-1", map[string]any{
		"origin":      "form",
		"score_label": "hot",
		"score":       80,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, []string{"origin:form", "score_label:hot"}, tagsFrom(map[string]any{"score_label": "hot", "origin": "form", "score": 1}))
}

func TestService_LogEventError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO audit_events").WillReturnError(errors.New("connection refused"))

	err = NewService(db).LogEvent(context.Background(), Event{EventType: "new_lead"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit: failed to log event")
}

func TestService_QueryBuildsFilters(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "event_type", "subject_id", "tags", "details", "created_at"}).
		AddRow("evt-1", "lead_status_changed", "lead-1", "{status:closed}", []byte(`{"old_status":"new"}`), now)

	mock.ExpectQuery(`SELECT id, event_type, subject_id, tags, details, created_at FROM audit_events WHERE 1 = 1 AND subject_id = \$1 AND \$2 = ANY\(tags\) ORDER BY created_at DESC LIMIT 10`).
		WithArgs("lead-1", "status:closed").
		WillReturnRows(rows)

	events, err := NewService(db).Query(context.Background(), Filter{SubjectID: "lead-1", Tag: "status:closed", Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, []string{"status:closed"}, events[0].Tags)

	var details map[string]string
	require.NoError(t, json.Unmarshal(events[0].Details, &details))
	assert.Equal(t, "new", details["old_status"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_ServesEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, event_type").
		WithArgs("new_lead").
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_type", "subject_id", "tags", "details", "created_at"}))

	rec := httptest.NewRecorder()
	NewHandler(NewService(db), nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/audit?type=new_lead", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"events":[]}`, rec.Body.String())
}
