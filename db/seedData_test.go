package db

import (
	"testing"

	"freight-billing-backend/db/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultInvoiceStatuses(t *testing.T) {
	defs := DefaultInvoiceStatuses()
	require.Len(t, defs, 7)

	want := []string{"uninvoiced", "ready_to_invoice", "generated", "invoiced", "paid", "overdue", "exception"}
	seen := make(map[string]bool)
	for i, d := range defs {
		assert.Equal(t, want[i], d.StatusCode)
		assert.NotEmpty(t, d.StatusLabel)
		assert.True(t, d.Enabled)
		assert.False(t, seen[d.StatusCode], "duplicate status code %s", d.StatusCode)
		seen[d.StatusCode] = true
		if i > 0 {
			assert.Greater(t, d.SortOrder, defs[i-1].SortOrder)
		}
	}
	assert.Equal(t, models.DefaultInvoiceStatusCode, defs[0].StatusCode)
}

func TestDefaultInvoiceStatusesReturnsCopies(t *testing.T) {
	first := DefaultInvoiceStatuses()
	first[0].StatusLabel = "changed"

	second := DefaultInvoiceStatuses()
	assert.Equal(t, "Uninvoiced", second[0].StatusLabel)
}
