package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"invoicescraper/pkg/logger"
	"invoicescraper/pkg/models"
)

const currentVersion = 1

// Checkpoint is the journal of one extraction request
type Checkpoint struct {
	RequestKey string                 `json:"request_key"`
	RunID      string                 `json:"run_id"`
	Amounts    []string               `json:"amounts"`
	Records    []models.InvoiceRecord `json:"records"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
	Version    int                    `json:"version"`
}

// Record returns the journaled record for an amount
func (c *Checkpoint) Record(amount string) (models.InvoiceRecord, bool) {
	for _, r := range c.Records {
		if r.Amount == amount {
			return r, true
		}
	}
	return models.InvoiceRecord{}, false
}

// put replaces the record for its amount or appends it
func (c *Checkpoint) put(rec models.InvoiceRecord) {
	for i, r := range c.Records {
		if r.Amount == rec.Amount {
			c.Records[i] = rec
			return
		}
	}
	c.Records = append(c.Records, rec)
}

// Manager handles checkpoint operations for one request key
type Manager struct {
	checkpointPath string
	logger         logger.Logger
}

// NewManager creates a manager for the journal of requestKey. An empty dir
// selects the platform data directory.
func NewManager(requestKey, dir string) (*Manager, error) {
	if dir == "" {
		dataDir, err := getDataDirectory()
		if err != nil {
			return nil, fmt.Errorf("failed to get data directory: %w", err)
		}
		dir = filepath.Join(dataDir, "checkpoints")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	return &Manager{
		checkpointPath: filepath.Join(dir, fmt.Sprintf("%s.checkpoint.json", requestKey)),
		logger:         logger.GetLogger().WithField("component", "checkpoint"),
	}, nil
}

// Path returns the journal file path
func (m *Manager) Path() string {
	return m.checkpointPath
}

// Create writes a fresh checkpoint, replacing any existing one
func (m *Manager) Create(requestKey, runID string, amounts []string) (*Checkpoint, error) {
	now := time.Now()
	cp := &Checkpoint{
		RequestKey: requestKey,
		RunID:      runID,
		Amounts:    append([]string(nil), amounts...),
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    currentVersion,
	}
	if err := m.Save(cp); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}
	m.logger.InfoWithFields("Checkpoint created", map[string]interface{}{
		"run_id": runID,
		"path":   m.checkpointPath,
	})
	return cp, nil
}

// Load reads the checkpoint. It returns nil, nil when none exists.
func (m *Manager) Load() (*Checkpoint, error) {
	file, err := os.Open(m.checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var cp Checkpoint
	if err := json.NewDecoder(file).Decode(&cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if cp.Version != currentVersion {
		return nil, fmt.Errorf("unsupported checkpoint version %d", cp.Version)
	}

	m.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"run_id":     cp.RunID,
		"records":    len(cp.Records),
		"updated_at": cp.UpdatedAt,
	})
	return &cp, nil
}

// Save writes the checkpoint atomically
func (m *Manager) Save(cp *Checkpoint) error {
	cp.UpdatedAt = time.Now()

	tempPath := m.checkpointPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cp); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}
	if err := os.Rename(tempPath, m.checkpointPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"run_id":  cp.RunID,
		"records": len(cp.Records),
	})
	return nil
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	if err := os.Remove(m.checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	m.logger.Debug("Checkpoint deleted")
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.checkpointPath)
	return err == nil
}

// GetCheckpointInfo returns a summary of the checkpoint, or nil when none exists
func (m *Manager) GetCheckpointInfo() (map[string]interface{}, error) {
	cp, err := m.Load()
	if err != nil || cp == nil {
		return nil, err
	}
	found := 0
	for _, r := range cp.Records {
		if r.Found() {
			found++
		}
	}
	return map[string]interface{}{
		"run_id":     cp.RunID,
		"amounts":    len(cp.Amounts),
		"records":    len(cp.Records),
		"found":      found,
		"created_at": cp.CreatedAt,
		"updated_at": cp.UpdatedAt,
		"age":        time.Since(cp.UpdatedAt),
	}, nil
}

// Session is the journal of one run
type Session struct {
	mgr     *Manager
	mu      sync.Mutex
	cp      *Checkpoint
	resumed []models.InvoiceRecord
}

// Begin opens the journal for a run. With resume set, records of a previous
// run that located an invoice are carried over; sentinel records are dropped
// so those amounts are processed again.
func (m *Manager) Begin(requestKey, runID string, amounts []string, resume bool) (*Session, error) {
	s := &Session{mgr: m}
	if resume {
		prev, err := m.Load()
		if err != nil {
			return nil, err
		}
		if prev != nil && prev.RequestKey == requestKey {
			kept := prev.Records[:0]
			for _, r := range prev.Records {
				if r.Found() {
					kept = append(kept, r)
				}
			}
			prev.Records = kept
			prev.RunID = runID
			if err := m.Save(prev); err != nil {
				return nil, err
			}
			s.cp = prev
			s.resumed = append([]models.InvoiceRecord(nil), kept...)
			return s, nil
		}
	}
	cp, err := m.Create(requestKey, runID, amounts)
	if err != nil {
		return nil, err
	}
	s.cp = cp
	return s, nil
}

// Resumed returns the records carried over from a previous run
func (s *Session) Resumed() []models.InvoiceRecord {
	return s.resumed
}

// Record journals a finalized record
func (s *Session) Record(rec models.InvoiceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cp.put(rec)
	return s.mgr.Save(s.cp)
}

// Finish deletes the journal after a successful run
func (s *Session) Finish() error {
	return s.mgr.Delete()
}

// getDataDirectory returns the appropriate data directory for the current OS
func getDataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "linux":
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "invoicescraper")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "invoicescraper")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "invoicescraper")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "invoicescraper")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dataDir, nil
}
