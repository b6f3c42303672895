package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"telegram-forwarder/internal/ports"
)

// File дописывает документы в файл по одному JSON-объекту на строку.
type File struct {
	name string
	path string
	mu   sync.Mutex
}

// NewFile создает приемник и каталог для файла.
func NewFile(name, path string) (*File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory for %s: %w", path, err)
		}
	}
	return &File{name: name, path: path}, nil
}

func (f *File) Name() string { return f.name }

// Write открывает файл на каждую запись, чтобы внешняя ротация не теряла данные.
func (f *File) Write(_ context.Context, d *ports.Delivery) error {
	line, err := encodeLine(d.Document)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	out, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.path, err)
	}
	if _, err := out.Write(line); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	return out.Close()
}

func (f *File) Close() error { return nil }
