package entity

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileManager handles a public file reference field (avatars). The
// stored value is the file path relative to the public root; URL falls
// back to a static default while nothing was uploaded.
type FileManager struct {
	entity     *Entity
	field      string
	root       string
	defaultURL string
}

// NewFileManagerFactory returns a Managed-field constructor binding
// every produced manager to the public root directory and the static
// fallback URL.
func NewFileManagerFactory(root, defaultURL string) func(e *Entity, field string) any {
	return func(e *Entity, field string) any {
		return &FileManager{entity: e, field: field, root: root, defaultURL: defaultURL}
	}
}

// URL returns the public path of the uploaded file, or the fallback.
func (m *FileManager) URL() string {
	if rel, ok := m.entity.Raw(m.field).(string); ok && rel != "" {
		return rel
	}
	return m.defaultURL
}

// Upload stores the file content under the public root and records the
// reference on the entity.
func (m *FileManager) Upload(name string, content io.Reader) error {
	rel := fmt.Sprintf("%s_%d_%s", m.entity.Schema().Name(), m.entity.ID(), filepath.Base(name))
	dst := filepath.Join(m.root, rel)
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return fmt.Errorf("failed to create public root: %w", err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create public file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, content); err != nil {
		return fmt.Errorf("failed to write public file: %w", err)
	}
	m.entity.SetDirect(m.field, rel)
	m.entity.NotifyFieldChanged(m.field)
	return nil
}

// Delete removes the uploaded file and restores the fallback.
func (m *FileManager) Delete() error {
	rel, ok := m.entity.Raw(m.field).(string)
	if ok && rel != "" {
		if err := os.Remove(filepath.Join(m.root, rel)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove public file: %w", err)
		}
	}
	m.entity.SetDirect(m.field, nil)
	m.entity.NotifyFieldChanged(m.field)
	return nil
}
