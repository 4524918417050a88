package webhooks

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDestination_Normalize(t *testing.T) {
	d := Destination{
		Name:     "  CRM  ",
		URL:      " https://hooks.zapier.com/hooks/catch/1/abc ",
		Events:   []Event{"NEW_LEAD", "new_lead", "bogus", EventLeadStatusChanged},
		AuthType: "weird",
		CustomHeaders: map[string]string{
			"X-Good":      "ok",
			"Bad Header":  "x",
			"X-Injection": "a\r\nb",
		},
	}
	require.NoError(t, d.Normalize())
	assert.Equal(t, "CRM", d.Name)
	assert.Equal(t, []Event{EventNewLead, EventLeadStatusChanged}, d.Events)
	assert.Equal(t, AuthNone, d.AuthType)
	assert.Equal(t, map[string]string{"X-Good": "ok"}, d.CustomHeaders)

	assert.ErrorIs(t, (&Destination{URL: "https://x.test"}).Normalize(), ErrInvalidDestination)
	assert.ErrorIs(t, (&Destination{Name: "n", URL: "ftp://x.test"}).Normalize(), ErrInvalidDestination)
}

func TestDestination_SubscribedAndRedacted(t *testing.T) {
	d := Destination{Events: []Event{EventNewLead}, AuthValue: "secret"}
	assert.True(t, d.Subscribed(EventNewLead))
	assert.False(t, d.Subscribed(EventNewsletterSubscribe))
	assert.True(t, d.Subscribed(EventTest))
	assert.Equal(t, "********", d.Redacted().AuthValue)
	assert.Equal(t, "secret", d.AuthValue)
}

func TestMemoryDestinationStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDestinationStore()

	created, err := store.Create(ctx, Destination{Name: "a", URL: "https://hooks.slack.com/x", Events: []Event{EventNewLead}, Enabled: true, Trusted: true})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	updated, err := store.Update(ctx, created.ID, Destination{Name: "b", URL: "https://hooks.slack.com/x"})
	require.NoError(t, err)
	assert.Equal(t, "b", updated.Name)
	assert.True(t, updated.Trusted, "same URL keeps trust")
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.Delete(ctx, created.ID))
	_, err = store.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrDestinationNotFound)
	assert.ErrorIs(t, store.Delete(ctx, created.ID), ErrDestinationNotFound)
}

func TestMemoryDestinationStore_UpdateNewURLDropsTrust(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDestinationStore()
	seeded, err := store.Create(ctx, Destination{Name: "ops", URL: "https://relay.internal.example/leads", Enabled: true, Trusted: true})
	require.NoError(t, err)

	moved, err := store.Update(ctx, seeded.ID, Destination{Name: "ops", URL: "http://127.0.0.1/latest/meta-data", Enabled: true})
	require.NoError(t, err)
	assert.False(t, moved.Trusted)

	stored, err := store.Get(ctx, seeded.ID)
	require.NoError(t, err)
	assert.False(t, stored.Trusted)

	res := NewSender(nil, nil).Deliver(ctx, *stored, NewPayload(EventNewLead, "lead-1", nil))
	assert.True(t, res.Skipped, "moved destination must pass the allow-list")
	assert.Zero(t, res.Attempts)
}

func TestMemoryDestinationStore_UpdateKeepsRedactedCredential(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDestinationStore()
	created, err := store.Create(ctx, Destination{Name: "crm", URL: "https://hooks.zapier.com/a", AuthType: AuthBearer, AuthValue: "tok"})
	require.NoError(t, err)

	for _, sent := range []string{RedactedAuthValue, ""} {
		_, err := store.Update(ctx, created.ID, Destination{Name: "crm-2", URL: "https://hooks.zapier.com/a", AuthType: AuthBearer, AuthValue: sent})
		require.NoError(t, err)
		stored, err := store.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "tok", stored.AuthValue, "sent %q", sent)
	}

	_, err = store.Update(ctx, created.ID, Destination{Name: "crm", URL: "https://hooks.zapier.com/a", AuthType: AuthBearer, AuthValue: "rotated"})
	require.NoError(t, err)
	stored, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "rotated", stored.AuthValue)
}

func destinationRow(id string) *pgxmock.Rows {
	now := time.Now().UTC()
	return pgxmock.NewRows([]string{
		"id", "name", "url", "events", "enabled", "auth_type", "auth_value", "custom_headers", "trusted", "created_at", "updated_at",
	}).AddRow(id, "crm", "https://hooks.zapier.com/a", []string{"new_lead"}, true, "bearer", "tok", []byte(`{"X-Env":"prod"}`), false, now, now)
}

func TestPostgresDestinationStore_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresDestinationStore(mock)
	mock.ExpectQuery("SELECT id, name, url").WithArgs("wh-1").WillReturnRows(destinationRow("wh-1"))

	d, err := store.Get(context.Background(), "wh-1")
	require.NoError(t, err)
	assert.Equal(t, []Event{EventNewLead}, d.Events)
	assert.Equal(t, AuthBearer, d.AuthType)
	assert.Equal(t, "prod", d.CustomHeaders["X-Env"])

	mock.ExpectQuery("SELECT id, name, url").WithArgs("gone").WillReturnError(pgx.ErrNoRows)
	_, err = store.Get(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrDestinationNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDestinationStore_CreateAndDelete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresDestinationStore(mock)
	mock.ExpectExec("INSERT INTO webhook_destinations").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	created, err := store.Create(context.Background(), Destination{Name: "crm", URL: "https://hooks.zapier.com/a"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	mock.ExpectExec("DELETE FROM webhook_destinations").WithArgs("missing").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	assert.ErrorIs(t, store.Delete(context.Background(), "missing"), ErrDestinationNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDestinationStore_UpdateKeepsCredentialAndGuardsTrust(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresDestinationStore(mock)
	mock.ExpectQuery(`auth_value = CASE WHEN \$9 THEN auth_value ELSE \$7 END`).
		WithArgs("wh-1", "crm", "https://hooks.zapier.com/a", []string{"new_lead"}, true, "bearer", "", pgxmock.AnyArg(), true).
		WillReturnRows(destinationRow("wh-1"))

	d, err := store.Update(context.Background(), "wh-1", Destination{
		Name: "crm", URL: "https://hooks.zapier.com/a", Events: []Event{EventNewLead},
		Enabled: true, AuthType: AuthBearer, AuthValue: RedactedAuthValue,
	})
	require.NoError(t, err)
	assert.Equal(t, "tok", d.AuthValue)

	mock.ExpectQuery(`trusted = trusted AND url = \$3`).
		WithArgs("wh-1", "crm", "https://hooks.zapier.com/b", []string{}, false, "bearer", "new-token", pgxmock.AnyArg(), false).
		WillReturnRows(destinationRow("wh-1"))
	_, err = store.Update(context.Background(), "wh-1", Destination{
		Name: "crm", URL: "https://hooks.zapier.com/b", AuthType: AuthBearer, AuthValue: "new-token",
	})
	require.NoError(t, err)

	mock.ExpectQuery("UPDATE webhook_destinations").WillReturnError(pgx.ErrNoRows)
	_, err = store.Update(context.Background(), "gone", Destination{Name: "x", URL: "https://hooks.zapier.com/a"})
	assert.ErrorIs(t, err, ErrDestinationNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadSeedFileMarksTrusted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webhooks.yaml")
	content := `destinations:
  - id: ops
    name: Ops relay
    url: https://relay.internal.example/leads
    enabled: true
    events: [new_lead, lead_status_changed]
    auth_type: bearer
    auth_value: s3cret
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	seeds, err := LoadSeedFile(path)
	require.NoError(t, err)
	require.Len(t, seeds, 1)
	assert.True(t, seeds[0].Trusted)
	assert.Equal(t, AuthBearer, seeds[0].AuthType)

	store := NewMemoryDestinationStore()
	n, err := Seed(context.Background(), store, seeds)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = Seed(context.Background(), store, seeds)
	require.NoError(t, err)
	assert.Zero(t, n, "existing ids are not reseeded")
}
