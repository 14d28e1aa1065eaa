package cart

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/utafrali/coffeeshop/internal/pricing"
)

// Storage persists a cart's full line list.
type Storage interface {
	// Load returns the saved lines, or none when nothing was saved yet.
	Load() ([]pricing.CartLine, error)
	Save(lines []pricing.CartLine) error
	Clear() error
}

// MemoryStorage keeps lines in process memory.
type MemoryStorage struct {
	mu    sync.Mutex
	lines []pricing.CartLine
	saves int
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Load() ([]pricing.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.lines), nil
}

func (m *MemoryStorage) Save(lines []pricing.CartLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = slices.Clone(lines)
	m.saves++
	return nil
}

func (m *MemoryStorage) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = nil
	return nil
}

// Saves returns how many times Save was called.
func (m *MemoryStorage) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// fileFormatVersion is bumped when the on-disk layout changes.
const fileFormatVersion = 1

type cartFile struct {
	Version int                `json:"version"`
	Lines   []pricing.CartLine `json:"lines"`
}

// FileStorage keeps lines in a JSON file, one per device.
type FileStorage struct {
	path string
}

// NewFileStorage stores the cart at path. The directory is created on the
// first save.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Path returns the backing file.
func (f *FileStorage) Path() string {
	return f.path
}

func (f *FileStorage) Load() ([]pricing.CartLine, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cart file: %w", err)
	}

	var cf cartFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("decode cart file %s: %w", f.path, err)
	}
	if cf.Version != fileFormatVersion {
		return nil, fmt.Errorf("cart file %s has unsupported version %d", f.path, cf.Version)
	}
	return cf.Lines, nil
}

// Save writes to a temporary file and renames it over the old one so a crash
// never leaves a half-written cart.
func (f *FileStorage) Save(lines []pricing.CartLine) error {
	if lines == nil {
		lines = []pricing.CartLine{}
	}
	data, err := json.MarshalIndent(cartFile{Version: fileFormatVersion, Lines: lines}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cart dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".cart-*.json")
	if err != nil {
		return fmt.Errorf("create temp cart file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write cart file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cart file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace cart file: %w", err)
	}
	return nil
}

func (f *FileStorage) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove cart file: %w", err)
	}
	return nil
}
