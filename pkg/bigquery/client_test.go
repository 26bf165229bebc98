package bigquery

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/trackvault-backend/pkg/config"
)

type saleRow struct {
	EventID     string              `bigquery:"event_id"`
	OccurredAt  time.Time           `bigquery:"occurred_at"`
	ArtistID    bigquery.NullString `bigquery:"artist_id"`
	AmountCents int64               `bigquery:"amount_cents"`
}

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	sales := TableSpec{Name: "sales_events", Row: saleRow{}}

	_, err := NewClient(ctx, config.GCPConfig{}, config.BigQueryConfig{Dataset: "tv"}, nil, sales)
	require.ErrorIs(t, err, errProjectIDRequired)

	_, err = NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{}, nil, sales)
	require.ErrorIs(t, err, errDatasetRequired)

	_, err = NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{Dataset: "tv"}, nil)
	require.ErrorIs(t, err, errTableNameRequired)

	_, err = NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{Dataset: "tv"}, nil, TableSpec{Name: "  "})
	require.ErrorIs(t, err, errTableNameRequired)
}

func TestTableMetadataInfersSchemaAndPartitions(t *testing.T) {
	meta, err := tableMetadata(TableSpec{Name: "sales_events", Row: saleRow{}, PartitionField: "occurred_at"})
	require.NoError(t, err)

	require.NotNil(t, meta.TimePartitioning)
	assert.Equal(t, bigquery.DayPartitioningType, meta.TimePartitioning.Type)
	assert.Equal(t, "occurred_at", meta.TimePartitioning.Field)

	fields := map[string]*bigquery.FieldSchema{}
	for _, f := range meta.Schema {
		fields[f.Name] = f
	}
	require.Contains(t, fields, "occurred_at")
	assert.Equal(t, bigquery.TimestampFieldType, fields["occurred_at"].Type)
	require.Contains(t, fields, "artist_id")
	assert.False(t, fields["artist_id"].Required, "null wrappers are nullable")
	assert.True(t, fields["amount_cents"].Required)

	_, err = tableMetadata(TableSpec{Name: "missing_row"})
	require.Error(t, err)
}

func TestNilClient(t *testing.T) {
	var c *Client
	require.ErrorIs(t, c.InsertRows(context.Background(), "sales_events", []any{1}), errClientNotInitialized)
	require.ErrorIs(t, c.Ping(context.Background()), errClientNotInitialized)
	require.NoError(t, c.Close())
}

func TestAPICodes(t *testing.T) {
	assert.True(t, isNotFound(&googleapi.Error{Code: http.StatusNotFound}))
	assert.True(t, isConflict(&googleapi.Error{Code: http.StatusConflict}))
	assert.False(t, isNotFound(&googleapi.Error{Code: http.StatusForbidden}))
	assert.False(t, isNotFound(errors.New("boom")))
}
