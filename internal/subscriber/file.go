package subscriber

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/roach88/alecycle/internal/ir"
)

// File appends reports to a file, one JSON document per line.
type File struct {
	base
	uri  string
	path string

	writeMu sync.Mutex
}

// NewFile creates a controller appending to path.
func NewFile(uri, path string) *File {
	f := &File{uri: uri, path: path}
	f.idle = f.Dispose
	return f
}

// URI returns the subscription URI.
func (f *File) URI() string { return f.uri }

// Enqueue appends r.
func (f *File) Enqueue(r *ir.Reports) {
	defer f.Dec()
	if err := f.write(r); err != nil {
		slog.Warn("report delivery failed", "subscriber", f.uri, "error", err, "event", "delivery_failed")
	}
}

// Dispose is a no-op; every write closes the file.
func (f *File) Dispose() {}

func (f *File) write(r *ir.Reports) error {
	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	line = append(line, '\n')

	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	fh, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.path, err)
	}
	if _, err := fh.Write(line); err != nil {
		fh.Close()
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	return fh.Close()
}
