package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"rovergrid.ai/internal/persistence/indexdb"
)

// indexPath is where the server keeps its run index under the data directory.
func indexPath(dataDir string) string {
	return filepath.Join(dataDir, "index", "runs.sqlite")
}

func openRuntimeIndex(dataDir string, disableDB bool, logger *log.Logger) (*indexdb.SQLiteIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("ROVER_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		logger.Printf("run index disabled (ROVER_INDEX_BACKEND=%s)", backend)
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(indexPath(dataDir))
	default:
		return nil, fmt.Errorf("unsupported ROVER_INDEX_BACKEND: %s", backend)
	}
}
