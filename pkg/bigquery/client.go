// Package bigquery wraps the BigQuery streaming client used for settlement
// analytics.
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

	"github.com/lectern-edu/lectern-payments/pkg/config"
	"github.com/lectern-edu/lectern-payments/pkg/gcp"
	"github.com/lectern-edu/lectern-payments/pkg/logger"
)

const lookupTimeout = 10 * time.Second

var (
	errProjectIDRequired    = errors.New("bigquery: gcp project id is required")
	errDatasetRequired      = errors.New("bigquery: dataset is required")
	errTableNameRequired    = errors.New("bigquery: table name is required")
	errClientNotInitialized = errors.New("bigquery: client not initialized")
)

// Client streams rows into one dataset.
type Client struct {
	bq      *bigquery.Client
	dataset *bigquery.Dataset
}

// NewClient connects to BigQuery and fails fast when the dataset or the
// settlements table is missing. Tables are provisioned by infrastructure, not
// by this service.
func NewClient(ctx context.Context, gcpCfg config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcpCfg.ProjectID)
	dataset := strings.TrimSpace(cfg.Dataset)
	table := strings.TrimSpace(cfg.SettlementsTable)
	switch {
	case project == "":
		return nil, errProjectIDRequired
	case dataset == "":
		return nil, errDatasetRequired
	case table == "":
		return nil, errTableNameRequired
	}

	bq, err := bigquery.NewClient(ctx, project, gcp.ClientOptions(gcpCfg)...)
	if err != nil {
		return nil, fmt.Errorf("bigquery: connect: %w", err)
	}
	c := &Client{bq: bq, dataset: bq.Dataset(dataset)}

	lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	if err := c.verify(lookupCtx, table); err != nil {
		_ = bq.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project": project,
			"dataset": dataset,
			"table":   table,
		}), "bigquery client ready")
	}
	return c, nil
}

func (c *Client) verify(ctx context.Context, tables ...string) error {
	if _, err := c.dataset.Metadata(ctx); err != nil {
		return lookupError("dataset", c.dataset.DatasetID, err)
	}
	for _, name := range tables {
		if _, err := c.dataset.Table(name).Metadata(ctx); err != nil {
			return lookupError("table", name, err)
		}
	}
	return nil
}

func lookupError(kind, name string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("bigquery: %s %q does not exist", kind, name)
	}
	return fmt.Errorf("bigquery: look up %s %q: %w", kind, name, err)
}

// InsertRows streams rows into table. Rows implementing bigquery.ValueSaver
// control their own insert ids.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.bq == nil {
		return errClientNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errTableNameRequired
	}
	if len(rows) == 0 {
		return nil
	}
	return c.dataset.Table(table).Inserter().Put(ctx, rows)
}

func (c *Client) Close() error {
	if c == nil || c.bq == nil {
		return nil
	}
	return c.bq.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
