package adapter_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/adapter"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/model"
)

func TestBigQueryAnalytics(t *testing.T) {
	projectID := os.Getenv("TEST_BIGQUERY_PROJECT")
	if projectID == "" {
		t.Skip("TEST_BIGQUERY_PROJECT is not set")
	}

	datasetID := os.Getenv("TEST_BIGQUERY_DATASET")
	if datasetID == "" {
		t.Skip("TEST_BIGQUERY_DATASET is not set")
	}

	tableID := os.Getenv("TEST_BIGQUERY_TABLE")
	if tableID == "" {
		t.Skip("TEST_BIGQUERY_TABLE is not set")
	}

	ctx := context.Background()
	analytics, err := adapter.NewBigQueryAnalytics(ctx, projectID, datasetID, tableID)
	gt.NoError(t, err)
	defer analytics.Close()

	err = analytics.Insert(ctx, &model.UsageEvent{
		Kind:          model.UsageAnswered,
		SessionID:     model.NewSessionID(),
		UserID:        "integration-test",
		LatencyMillis: 1200,
		PromptTokens:  450,
		ChunkCount:    4,
		CitationCount: 2,
		CreatedAt:     time.Now(),
	})
	gt.NoError(t, err)
}

func TestNopAnalytics(t *testing.T) {
	ctx := context.Background()
	analytics := adapter.NewNopAnalytics()

	gt.NoError(t, analytics.Insert(ctx, &model.UsageEvent{Kind: model.UsageAnswered}))
	gt.NoError(t, analytics.Insert(ctx))
	gt.NoError(t, analytics.Close())
}
