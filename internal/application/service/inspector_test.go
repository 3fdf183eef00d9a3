package service

import (
	"context"
	"testing"

	domainerrors "tenantmigrate/internal/domain/errors/domain"
	"tenantmigrate/internal/port/outbound"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceInspector_Inspect(t *testing.T) {
	inspector := NewSourceInspector()

	t.Run("returns count and schema for a healthy source", func(t *testing.T) {
		source := newFakeSource(makeRawRows(12))

		info, err := inspector.Inspect(context.Background(), source, "/tmp/assets.db")
		require.NoError(t, err)

		assert.Equal(t, "/tmp/assets.db", info.Path)
		assert.EqualValues(t, 12, info.RecordCount)
		assert.Len(t, info.Columns, len(defaultSourceSchema))
	})

	t.Run("fails on integrity check failure", func(t *testing.T) {
		source := newFakeSource(nil)
		source.integrityErr = domainerrors.ErrSourceCorrupt

		_, err := inspector.Inspect(context.Background(), source, "/tmp/assets.db")
		require.ErrorIs(t, err, domainerrors.ErrSourceCorrupt)
	})

	t.Run("fails when a required column is absent", func(t *testing.T) {
		source := newFakeSource(makeRawRows(3))
		source.schema = []outbound.SourceColumn{
			{Name: "asset_id", Type: "TEXT", IsPK: true},
			{Name: "name", Type: "TEXT"},
			// no category, quantity, is_enabled, start_date
		}

		_, err := inspector.Inspect(context.Background(), source, "/tmp/assets.db")
		require.ErrorIs(t, err, domainerrors.ErrSchemaMissing)
		assert.Contains(t, err.Error(), "category")
	})
}
