package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"election-backend/models"
)

const snapshotTimeFormat = "20060102150405"

// JSONStore writes each snapshot as a timestamped JSON file under dataDir
// and loads the most recent one at startup. Old files are pruned beyond the
// retention count after every save.
type JSONStore struct {
	dataDir string
	retain  int
	mu      sync.Mutex
	logger  *zap.Logger
}

// Helper struct for file sorting by embedded timestamp.
type snapshotFile struct {
	path      string
	timestamp int64
}

type snapshotFiles []snapshotFile

func (f snapshotFiles) Len() int           { return len(f) }
func (f snapshotFiles) Less(i, j int) bool { return f[i].timestamp < f[j].timestamp }
func (f snapshotFiles) Swap(i, j int)      { f[i], f[j] = f[j], f[i] }

func NewJSONStore(dataDir string, retain int, logger *zap.Logger) (*JSONStore, error) {
	absPath, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if retain <= 0 {
		retain = 5
	}

	return &JSONStore{
		dataDir: absPath,
		retain:  retain,
		logger:  logger,
	}, nil
}

func (s *JSONStore) SaveSnapshot(snap *models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	timestamp := time.Now().Format(snapshotTimeFormat)
	path := filepath.Join(s.dataDir, fmt.Sprintf("snapshot_%s.json", timestamp))

	// Write to a temporary file first, then rename for atomicity.
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save snapshot file: %w", err)
	}

	if err := s.cleanupOldFiles(); err != nil {
		s.logger.Warn("failed to cleanup old snapshot files", zap.Error(err))
	}
	return nil
}

func (s *JSONStore) LoadSnapshot() (*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest, err := s.latestFile()
	if err != nil {
		return nil, err
	}
	if latest == "" {
		return nil, ErrNotFound
	}

	file, err := os.Open(latest)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot %s: %w", latest, err)
	}
	defer file.Close()

	var snap models.Snapshot
	if err := json.NewDecoder(file).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", latest, err)
	}

	s.logger.Info("loaded snapshot",
		zap.String("file", filepath.Base(latest)),
		zap.Int("blocks", len(snap.Blocks)))
	return &snap, nil
}

func (s *JSONStore) Close() error {
	return nil
}

func (s *JSONStore) listFiles() (snapshotFiles, error) {
	matches, err := filepath.Glob(filepath.Join(s.dataDir, "snapshot_*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot files: %w", err)
	}

	var files snapshotFiles
	for _, path := range matches {
		base := filepath.Base(path)
		stampStr := strings.TrimSuffix(strings.TrimPrefix(base, "snapshot_"), ".json")
		stamp, err := time.Parse(snapshotTimeFormat, stampStr)
		if err != nil {
			s.logger.Warn("invalid timestamp in snapshot filename",
				zap.String("file", base), zap.Error(err))
			continue
		}
		files = append(files, snapshotFile{path: path, timestamp: stamp.Unix()})
	}

	sort.Sort(files)
	return files, nil
}

func (s *JSONStore) latestFile() (string, error) {
	files, err := s.listFiles()
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", nil
	}
	return files[len(files)-1].path, nil
}

func (s *JSONStore) cleanupOldFiles() error {
	files, err := s.listFiles()
	if err != nil {
		return err
	}
	if len(files) <= s.retain {
		return nil
	}

	for i := 0; i < len(files)-s.retain; i++ {
		if err := os.Remove(files[i].path); err != nil {
			s.logger.Warn("failed to remove old snapshot file",
				zap.String("file", files[i].path), zap.Error(err))
		}
	}
	return nil
}
