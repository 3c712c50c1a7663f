package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Manager writes export artifacts into an output directory without ever
// overwriting an existing file
type Manager struct {
	outputDir string
	saved     map[string]bool
	mu        sync.Mutex
}

// NewManager creates a new storage manager
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	manager := &Manager{
		outputDir: outputDir,
		saved:     make(map[string]bool),
	}

	if err := manager.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}

	return manager, nil
}

// scanExistingFiles records workbooks already present in the output directory
func (m *Manager) scanExistingFiles() error {
	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(filepath.Ext(entry.Name()), ".xlsx") {
			m.saved[entry.Name()] = true
		}
	}

	return nil
}

// Exists checks if an artifact with the given file name is already stored
func (m *Manager) Exists(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exists(name)
}

func (m *Manager) exists(name string) bool {
	if m.saved[name] {
		return true
	}
	if _, err := os.Stat(filepath.Join(m.outputDir, name)); err == nil {
		m.saved[name] = true
		return true
	}
	return false
}

// SaveArtifact writes data under name and returns the final path. When name
// is taken a numeric suffix is appended.
func (m *Manager) SaveArtifact(name string, data []byte) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	final := m.freeName(name)
	finalPath := filepath.Join(m.outputDir, final)
	tempPath := finalPath + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to write artifact data: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to sync artifact: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to rename file: %w", err)
	}

	m.saved[final] = true
	return finalPath, nil
}

// freeName returns name, or name with " (n)" before the extension when taken
func (m *Manager) freeName(name string) string {
	if !m.exists(name) {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, i, ext)
		if !m.exists(candidate) {
			return candidate
		}
	}
}

// GetSavedCount returns the number of workbooks known in the output directory
func (m *Manager) GetSavedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

// GetOutputDir returns the output directory path
func (m *Manager) GetOutputDir() string {
	return m.outputDir
}
