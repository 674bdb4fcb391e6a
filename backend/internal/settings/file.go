package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tringuyenminh209/mimamori/backend/pkg/feed"
)

// FileStore keeps settings in a YAML file. Keys missing from the file take their
// defaults.
type FileStore struct {
	l    *slog.Logger
	path string
	now  func() time.Time

	mu  sync.RWMutex
	cur Settings

	changes *feed.Feed[Settings]
}

// OpenFile loads path, or starts from defaults when it does not exist yet.
func OpenFile(l *slog.Logger, path string) (*FileStore, error) {
	f := &FileStore{
		l:       l.With(slog.String("component", "settings"), slog.String("path", path)),
		path:    path,
		now:     time.Now,
		cur:     Defaults(),
		changes: feed.New[Settings](),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		f.l.Info("settings file not found, using defaults")
		return f, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	s := Defaults()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	if err := s.Validate(); err != nil {
		f.l.Warn("stored settings are invalid, using defaults", slog.String("reason", err.Error()))
		return f, nil
	}

	f.cur = s

	return f, nil
}

func (f *FileStore) Get() Settings {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.cur
}

func (f *FileStore) String(key Key) string {
	v, err := f.Get().lookup(key)
	if err != nil {
		return ""
	}

	switch t := v.(type) {
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func (f *FileStore) Int(key Key) int {
	v, err := f.Get().lookup(key)
	if err != nil {
		return 0
	}

	if i, ok := v.(int); ok {
		return i
	}

	return 0
}

func (f *FileStore) Bool(key Key) bool {
	v, err := f.Get().lookup(key)
	if err != nil {
		return false
	}

	b, ok := v.(bool)

	return ok && b
}

// Changes subscribes to settings saved through Update or Reset.
func (f *FileStore) Changes(buffer int) *feed.Subscription[Settings] {
	return f.changes.Subscribe(buffer)
}

// Update validates s, stamps LastUpdate and writes it to disk.
func (f *FileStore) Update(s Settings) (Settings, error) {
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}

	s.LastUpdate = f.now().UTC().Truncate(time.Second)

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.save(s); err != nil {
		return Settings{}, err
	}

	f.cur = s
	f.changes.Send(s)
	f.l.Info("settings updated", slog.String("broker", s.Broker), slog.String("dataTopic", s.DataTopic))

	return s, nil
}

// Reset removes the file and returns to defaults.
func (f *FileStore) Reset() (Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Settings{}, fmt.Errorf("failed to remove settings: %w", err)
	}

	f.cur = Defaults()
	f.changes.Send(f.cur)
	f.l.Info("settings reset to defaults")

	return f.cur, nil
}

// save writes to a temporary file in the same directory and renames it over path.
func (f *FileStore) save(s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace settings: %w", err)
	}

	return nil
}
