package adapter

import (
	"context"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/model"
)

// Analytics is a sink for usage events. Writes are fire-and-forget from
// the caller's point of view: a lost event never fails a request.
type Analytics interface {
	Insert(ctx context.Context, events ...*model.UsageEvent) error
	Close() error
}

// bigqueryAnalytics implements Analytics with BigQuery streaming inserts
type bigqueryAnalytics struct {
	client   *bigquery.Client
	inserter *bigquery.Inserter
}

// NewBigQueryAnalytics creates an Analytics sink writing to the given
// dataset and table.
func NewBigQueryAnalytics(ctx context.Context, projectID, datasetID, tableID string) (Analytics, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create BigQuery client")
	}

	return &bigqueryAnalytics{
		client:   client,
		inserter: client.Dataset(datasetID).Table(tableID).Inserter(),
	}, nil
}

func (a *bigqueryAnalytics) Insert(ctx context.Context, events ...*model.UsageEvent) error {
	if len(events) == 0 {
		return nil
	}

	rows := make([]*usageRow, 0, len(events))
	for _, ev := range events {
		rows = append(rows, &usageRow{event: ev})
	}
	if err := a.inserter.Put(ctx, rows); err != nil {
		return goerr.Wrap(err, "failed to insert usage events", goerr.V("count", len(rows)))
	}
	return nil
}

func (a *bigqueryAnalytics) Close() error {
	if err := a.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close BigQuery client")
	}
	return nil
}

// usageRow adapts a UsageEvent to the streaming insert API. The insert ID
// deduplicates retried rows on the BigQuery side.
type usageRow struct {
	event *model.UsageEvent
}

func (r *usageRow) Save() (map[string]bigquery.Value, string, error) {
	ev := r.event
	return map[string]bigquery.Value{
		"kind":           ev.Kind,
		"session_id":     string(ev.SessionID),
		"user_id":        ev.UserID,
		"document_id":    string(ev.DocumentID),
		"latency_millis": ev.LatencyMillis,
		"prompt_tokens":  ev.PromptTokens,
		"chunk_count":    ev.ChunkCount,
		"citation_count": ev.CitationCount,
		"created_at":     ev.CreatedAt,
	}, uuid.New().String(), nil
}

// nopAnalytics drops events. Used when no analytics sink is configured.
type nopAnalytics struct{}

func NewNopAnalytics() Analytics {
	return &nopAnalytics{}
}

func (*nopAnalytics) Insert(ctx context.Context, events ...*model.UsageEvent) error {
	return nil
}

func (*nopAnalytics) Close() error {
	return nil
}
