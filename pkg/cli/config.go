package cli

import (
	"context"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/adapter"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/content"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/repository"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/utils/logging"
)

// config holds configuration values
type config struct {
	// Logging
	logLevel  string
	logFormat string

	// Google Cloud
	project  string
	database string

	// Gemini
	geminiAPIKey   string
	geminiProject  string
	geminiLocation string

	// Vector index
	indexBackend     string
	qdrantURL        string
	qdrantAPIKey     string
	qdrantCollection string

	// Repository
	repoBackend string

	// Analytics
	bigqueryDataset string
	bigqueryTable   string

	// Auth
	authVerifyURL string
	devTokens     string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("TUTOR_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       logging.FormatConsole,
			Sources:     cli.EnvVars("TUTOR_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
	}
}

// geminiFlags returns flags for Gemini configuration with destination config
func geminiFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini API key (uses Vertex AI when unset)",
			Sources:     cli.EnvVars("GEMINI_API_KEY"),
			Destination: &cfg.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
	}
}

// indexFlags returns flags for vector index configuration with destination config
func indexFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "index",
			Usage:       "Vector index backend (qdrant, memory)",
			Value:       "qdrant",
			Sources:     cli.EnvVars("TUTOR_INDEX"),
			Destination: &cfg.indexBackend,
		},
		&cli.StringFlag{
			Name:        "qdrant-url",
			Usage:       "Qdrant base URL",
			Value:       "http://localhost:6333",
			Sources:     cli.EnvVars("QDRANT_URL"),
			Destination: &cfg.qdrantURL,
		},
		&cli.StringFlag{
			Name:        "qdrant-api-key",
			Usage:       "Qdrant API key",
			Sources:     cli.EnvVars("QDRANT_API_KEY"),
			Destination: &cfg.qdrantAPIKey,
		},
		&cli.StringFlag{
			Name:        "qdrant-collection",
			Usage:       "Qdrant collection name",
			Value:       "textbook_content",
			Sources:     cli.EnvVars("QDRANT_COLLECTION"),
			Destination: &cfg.qdrantCollection,
		},
	}
}

// repositoryFlags returns flags for session storage configuration with destination config
func repositoryFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "repository",
			Usage:       "Session repository backend (firestore, memory)",
			Value:       "memory",
			Sources:     cli.EnvVars("TUTOR_REPOSITORY"),
			Destination: &cfg.repoBackend,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
	}
}

// analyticsFlags returns flags for learning analytics configuration with destination config
func analyticsFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "bigquery-dataset",
			Usage:       "BigQuery dataset for learning analytics (disabled when unset)",
			Sources:     cli.EnvVars("TUTOR_BIGQUERY_DATASET"),
			Destination: &cfg.bigqueryDataset,
		},
		&cli.StringFlag{
			Name:        "bigquery-table",
			Usage:       "BigQuery table for learning analytics",
			Value:       "events",
			Sources:     cli.EnvVars("TUTOR_BIGQUERY_TABLE"),
			Destination: &cfg.bigqueryTable,
		},
	}
}

// authFlags returns flags for token verification configuration with destination config
func authFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "auth-verify-url",
			Usage:       "Auth service endpoint for bearer token verification",
			Sources:     cli.EnvVars("TUTOR_AUTH_VERIFY_URL"),
			Destination: &cfg.authVerifyURL,
		},
		&cli.StringFlag{
			Name:        "dev-tokens",
			Usage:       "Static token=user pairs for local development, comma separated",
			Sources:     cli.EnvVars("TUTOR_DEV_TOKENS"),
			Destination: &cfg.devTokens,
		},
	}
}

// setupLogging installs the configured logger as the process default.
// Logs go to stderr so stdout stays free for command output and the
// MCP stdio transport.
func (cfg *config) setupLogging() {
	logging.SetDefault(logging.New(cfg.logLevel, cfg.logFormat, os.Stderr))
}

// newRepository creates a new repository instance
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	switch cfg.repoBackend {
	case "firestore":
		if cfg.project == "" {
			return nil, goerr.New("project is required for the firestore repository")
		}
		repo, err := repository.New(ctx, cfg.project, cfg.database)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create repository")
		}
		return repo, nil

	case "memory":
		return repository.NewMemory(), nil
	}

	return nil, goerr.New("unknown repository backend", goerr.V("repository", cfg.repoBackend))
}

// newIndex creates a new vector index instance
func (cfg *config) newIndex() (adapter.VectorIndex, error) {
	switch cfg.indexBackend {
	case "qdrant":
		if cfg.qdrantURL == "" {
			return nil, goerr.New("qdrant-url is required")
		}
		opts := []adapter.QdrantOption{
			adapter.WithQdrantCollection(cfg.qdrantCollection),
		}
		if cfg.qdrantAPIKey != "" {
			opts = append(opts, adapter.WithQdrantAPIKey(cfg.qdrantAPIKey))
		}
		return adapter.NewQdrant(cfg.qdrantURL, opts...), nil

	case "memory":
		return adapter.NewMemoryIndex(), nil
	}

	return nil, goerr.New("unknown index backend", goerr.V("index", cfg.indexBackend))
}

// newGemini creates a new Gemini adapter instance. An API key selects the
// Gemini API directly; otherwise the Vertex AI path is used.
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	if cfg.geminiAPIKey != "" {
		gemini, err := adapter.NewGeminiWithAPIKey(ctx, cfg.geminiAPIKey)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create gemini client")
		}
		return gemini, nil
	}

	project := cfg.geminiProject
	if project == "" {
		project = cfg.project
	}
	if project == "" {
		return nil, goerr.New("either gemini-api-key or gemini-project is required")
	}

	gemini, err := adapter.NewGemini(ctx, project, cfg.geminiLocation)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create gemini client")
	}
	return gemini, nil
}

// newAnalytics creates a new analytics sink. Without a dataset configured
// events are discarded.
func (cfg *config) newAnalytics(ctx context.Context) (adapter.Analytics, error) {
	if cfg.bigqueryDataset == "" {
		return adapter.NewNopAnalytics(), nil
	}

	if cfg.project == "" {
		return nil, goerr.New("project is required for bigquery analytics")
	}
	analytics, err := adapter.NewBigQueryAnalytics(ctx, cfg.project, cfg.bigqueryDataset, cfg.bigqueryTable)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create bigquery analytics")
	}
	return analytics, nil
}

// newVerifier creates the bearer token verifier. With neither a verify
// endpoint nor dev tokens configured every presented token is rejected,
// leaving anonymous chat as the only access.
func (cfg *config) newVerifier() (adapter.TokenVerifier, error) {
	if cfg.authVerifyURL != "" {
		return adapter.NewAuthClient(cfg.authVerifyURL), nil
	}

	if cfg.devTokens == "" {
		return adapter.NewStaticVerifier(nil), nil
	}

	tokens := make(map[string]string)
	for _, pair := range strings.Split(cfg.devTokens, ",") {
		token, user, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || token == "" || user == "" {
			return nil, goerr.New("malformed dev token entry, want token=user", goerr.V("entry", pair))
		}
		tokens[token] = user
	}
	return adapter.NewStaticVerifier(tokens), nil
}

// newSource resolves a content location to a document source. Local
// directories also return their root path so watch mode can follow them;
// gs:// locations return an empty root.
func (cfg *config) newSource(ctx context.Context, location string) (content.Source, string, error) {
	if bucketPath, ok := strings.CutPrefix(location, "gs://"); ok {
		bucket, prefix, _ := strings.Cut(bucketPath, "/")
		if bucket == "" {
			return nil, "", goerr.New("bucket name is required", goerr.V("location", location))
		}
		storage, err := adapter.NewStorage(ctx, bucket)
		if err != nil {
			return nil, "", goerr.Wrap(err, "failed to create storage client")
		}
		return content.NewStorageSource(storage, prefix), "", nil
	}

	return content.NewDirSource(location), location, nil
}
