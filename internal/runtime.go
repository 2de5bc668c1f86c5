package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/starford/mimir/internal/index"
	"github.com/starford/mimir/internal/noteservice"
	"github.com/starford/mimir/internal/storage"
)

// runtime owns the open store for the lifetime of a command: the vault, the
// SQLite index and the note service built on them.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	store  *storage.FS
	db     *index.DB
	svc    *noteservice.Service
}

// openRuntime creates the vault directory, opens the store (applying the
// schema) and builds the note service. Close releases the store.
func openRuntime(cfg *Config, logger *slog.Logger, svcOpts ...noteservice.Option) (*runtime, error) {
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	dbPath := cfg.SQLite.Resolve(cfg.Vault.Path)
	db, err := index.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	opts := []noteservice.Option{
		noteservice.WithLogger(logger),
		noteservice.WithVaultPattern(cfg.Vault.Pattern),
		noteservice.WithExcludedFiles(storeFiles(dbPath)...),
	}
	opts = append(opts, svcOpts...)

	return &runtime{
		cfg:    cfg,
		logger: logger,
		store:  store,
		db:     db,
		svc:    noteservice.NewService(store, db, opts...),
	}, nil
}

// Close closes the index.
func (rt *runtime) Close() error {
	return rt.db.Close()
}

// storeFiles lists the absolute paths of the SQLite file and its siblings.
func storeFiles(dbPath string) []string {
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return nil
	}
	return []string{abs, abs + "-wal", abs + "-shm", abs + "-journal"}
}
