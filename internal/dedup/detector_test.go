package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/medici-leads/internal/leads"
)

func TestDetector_FindDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := leads.NewInMemoryRepository()
	existing, err := repo.Create(ctx, &leads.CreateLeadRequest{Name: "Jane", Email: "jane@biz.com", Phone: "+380991234567"})
	require.NoError(t, err)

	d := NewDetector(repo, 0)

	id, err := d.FindDuplicate(ctx, " JANE@biz.com ", "")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, id)

	id, _ = d.FindDuplicate(ctx, "", "+380991234567")
	assert.Equal(t, existing.ID, id)

	id, _ = d.FindDuplicate(ctx, "someone@else.com", "+1555")
	assert.Empty(t, id)

	id, _ = d.FindDuplicate(ctx, "", "")
	assert.Empty(t, id)
}

func TestDetector_WindowExcludesOldLeads(t *testing.T) {
	ctx := context.Background()
	repo := leads.NewInMemoryRepository()
	_, err := repo.Create(ctx, &leads.CreateLeadRequest{Name: "Jane", Email: "jane@biz.com"})
	require.NoError(t, err)

	d := NewDetector(repo, time.Hour)
	d.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	id, err := d.FindDuplicate(ctx, "jane@biz.com", "")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestParsePolicy(t *testing.T) {
	assert.Equal(t, PolicyAllow, ParsePolicy(""))
	assert.Equal(t, PolicyAllow, ParsePolicy("block"))
	assert.Equal(t, PolicyWarn, ParsePolicy(" WARN "))
	assert.Equal(t, PolicyReject, ParsePolicy("reject"))
}
