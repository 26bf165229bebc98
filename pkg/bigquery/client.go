package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/trackvault-backend/pkg/config"
	"github.com/angelmondragon/trackvault-backend/pkg/logger"
)

const metadataTimeout = 10 * time.Second

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// TableSpec describes a table the caller streams into. Row is a zero value of
// the row struct; its bigquery tags drive the schema when the table is created.
type TableSpec struct {
	Name           string
	Row            any
	PartitionField string
}

// Client streams fact rows into one dataset.
type Client struct {
	client     *bigquery.Client
	dataset    *bigquery.Dataset
	specs      []TableSpec
	autoCreate bool
}

// NewClient connects and checks that the dataset and every spec'd table exist.
// With TRACKVAULT_BIGQUERY_AUTO_CREATE set, missing ones are created instead.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger, specs ...TableSpec) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errDatasetRequired
	}
	if len(specs) == 0 {
		return nil, errTableNameRequired
	}
	for i := range specs {
		specs[i].Name = strings.TrimSpace(specs[i].Name)
		if specs[i].Name == "" {
			return nil, errTableNameRequired
		}
	}

	bq, err := bigquery.NewClient(ctx, projectID, credentialOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}
	c := &Client{client: bq, dataset: bq.Dataset(datasetID), specs: specs, autoCreate: cfg.AutoCreate}
	if err := c.prepare(ctx); err != nil {
		_ = bq.Close()
		return nil, err
	}

	if logg != nil {
		names := make([]string, len(specs))
		for i, s := range specs {
			names[i] = s.Name
		}
		logg.Info(logg.WithFields(ctx, map[string]any{"dataset": datasetID, "tables": names, "auto_create": cfg.AutoCreate}), "bigquery client initialized")
	}
	return c, nil
}

func credentialOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	}
	return nil
}

func (c *Client) prepare(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		if !isNotFound(err) {
			return fmt.Errorf("read dataset %q: %w", c.dataset.DatasetID, err)
		}
		if !c.autoCreate {
			return fmt.Errorf("dataset %q does not exist", c.dataset.DatasetID)
		}
		if err := c.dataset.Create(ctx, &bigquery.DatasetMetadata{}); err != nil && !isConflict(err) {
			return fmt.Errorf("create dataset %q: %w", c.dataset.DatasetID, err)
		}
	}

	for _, spec := range c.specs {
		table := c.dataset.Table(spec.Name)
		_, err := table.Metadata(ctx)
		if err == nil {
			continue
		}
		if !isNotFound(err) {
			return fmt.Errorf("read table %q: %w", spec.Name, err)
		}
		if !c.autoCreate {
			return fmt.Errorf("table %q does not exist", spec.Name)
		}
		meta, err := tableMetadata(spec)
		if err != nil {
			return err
		}
		if err := table.Create(ctx, meta); err != nil && !isConflict(err) {
			return fmt.Errorf("create table %q: %w", spec.Name, err)
		}
	}
	return nil
}

// tableMetadata infers the schema from spec.Row and adds daily partitioning.
func tableMetadata(spec TableSpec) (*bigquery.TableMetadata, error) {
	if spec.Row == nil {
		return nil, fmt.Errorf("table %q has no row type to infer a schema from", spec.Name)
	}
	schema, err := bigquery.InferSchema(spec.Row)
	if err != nil {
		return nil, fmt.Errorf("infer schema for %q: %w", spec.Name, err)
	}
	meta := &bigquery.TableMetadata{Name: spec.Name, Schema: schema}
	if spec.PartitionField != "" {
		meta.TimePartitioning = &bigquery.TimePartitioning{Type: bigquery.DayPartitioningType, Field: spec.PartitionField}
	}
	return meta, nil
}

// Ping checks the dataset is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	if _, err := c.dataset.Metadata(ctx); err != nil {
		return fmt.Errorf("read dataset %q: %w", c.dataset.DatasetID, err)
	}
	return nil
}

// InsertRows streams rows into table. Rows may be structs or ValueSavers.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.client == nil {
		return errClientNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errTableNameRequired
	}
	if len(rows) == 0 {
		return nil
	}
	if err := c.dataset.Table(table).Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("insert %d rows into %s: %w", len(rows), table, err)
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool {
	return apiCode(err) == http.StatusNotFound
}

func isConflict(err error) bool {
	return apiCode(err) == http.StatusConflict
}

func apiCode(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr.Code
	}
	return 0
}
