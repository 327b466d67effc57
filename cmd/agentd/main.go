package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/agentui/agentd/agents"
	"github.com/agentui/agentd/plugins"
	"github.com/agentui/agentd/server"
	"github.com/agentui/agentd/vectordb"
	"github.com/agentui/agentd/vectordb/embedder/mock"
	"github.com/agentui/agentd/vectordb/embedder/onnx"
	chromemstore "github.com/agentui/agentd/vectordb/store/chromem"
	sqlitestore "github.com/agentui/agentd/vectordb/store/sqlite"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	cfg := loadConfig()
	ctx := context.Background()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("create data dir: %v", err)
	}

	registry := buildRegistry(cfg)
	if err := registry.SetCurrent(vectordb.ProviderConfig{
		Type:       cfg.EmbedProvider,
		Dimensions: cfg.EmbedDimensions,
	}); err != nil {
		log.Fatalf("activate embedding provider: %v", err)
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("open document store: %v", err)
	}
	defer store.Close()

	service := vectordb.NewService(store, registry, logger)

	agentStore, err := agents.New(ctx, filepath.Join(cfg.DataDir, "agents.db"), logger)
	if err != nil {
		log.Fatalf("open agent store: %v", err)
	}
	defer agentStore.Close()

	pluginStore, err := plugins.New(ctx, filepath.Join(cfg.DataDir, "plugins.db"), logger)
	if err != nil {
		log.Fatalf("open plugin store: %v", err)
	}
	defer pluginStore.Close()

	srv := server.New(service, agentStore, pluginStore, logger)
	defer srv.Events().Close()

	logger.Info("starting agentd",
		"addr", cfg.ListenAddr,
		"backend", cfg.Backend,
		"data", cfg.DataDir,
		"provider", cfg.EmbedProvider)
	if err := http.ListenAndServe(cfg.ListenAddr, srv.Router()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// buildRegistry registers the provider catalog. The default provider is
// always available; the onnx provider only embeds successfully in builds
// with the onnx tag.
func buildRegistry(cfg config) *vectordb.Registry {
	registry := vectordb.NewRegistry()

	registry.Register(vectordb.ProviderInfo{
		ID:                "default",
		DisplayName:       "Default Mock Embeddings",
		Description:       "Random embedding vectors for testing (not for production use)",
		DefaultDimensions: mock.DefaultDimensions,
	}, func(pc vectordb.ProviderConfig) (vectordb.Embedder, error) {
		return mock.New(pc.Dimensions), nil
	})

	registry.Register(vectordb.ProviderInfo{
		ID:                "onnx",
		DisplayName:       "Local ONNX Embeddings",
		Description:       "all-MiniLM-L6-v2 running locally through ONNX Runtime",
		DefaultDimensions: 384,
		CacheEmbeddings:   true,
	}, func(pc vectordb.ProviderConfig) (vectordb.Embedder, error) {
		return onnx.New(onnx.Config{
			ModelPath:     cfg.ONNXModelPath,
			TokenizerPath: cfg.ONNXTokenizerPath,
			Dimensions:    pc.Dimensions,
		})
	})

	return registry
}

func openStore(ctx context.Context, cfg config, logger *slog.Logger) (vectordb.Store, error) {
	switch cfg.Backend {
	case "chromem":
		if cfg.ChromemPersist {
			return chromemstore.NewPersistent(filepath.Join(cfg.DataDir, "chromem"), logger)
		}
		return chromemstore.New(logger), nil
	default:
		return sqlitestore.New(ctx, filepath.Join(cfg.DataDir, "collections.db"), logger)
	}
}

// ------------ config & helpers ------------

type config struct {
	ListenAddr        string
	DataDir           string
	Backend           string
	ChromemPersist    bool
	EmbedProvider     string
	EmbedDimensions   int
	ONNXModelPath     string
	ONNXTokenizerPath string
}

func loadConfig() config {
	return config{
		ListenAddr:        getenv("AGENTD_LISTEN_ADDR", ":3001"),
		DataDir:           getenv("AGENTD_DATA_DIR", "data"),
		Backend:           getenv("AGENTD_BACKEND", "sqlite"),
		ChromemPersist:    getenvBool("AGENTD_CHROMEM_PERSIST", true),
		EmbedProvider:     getenv("AGENTD_EMBED_PROVIDER", "default"),
		EmbedDimensions:   getenvInt("AGENTD_EMBED_DIM", 0),
		ONNXModelPath:     os.Getenv("AGENTD_ONNX_MODEL"),
		ONNXTokenizerPath: os.Getenv("AGENTD_ONNX_TOKENIZER"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
