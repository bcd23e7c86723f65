// Package timeseries writes time-indexed netCDF datasets one step at a time.
package timeseries

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ctessum/cdf"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"go.ngs.io/ncresample/internal/domain"
)

// handle is an open dataset owned by a Manager.
type handle struct {
	path string
	file *os.File
	cf   *cdf.File
	rows int
	cols int
}

// numRecs returns the number of complete records in the file.
func (h *handle) numRecs() (int, error) {
	fi, err := h.file.Stat()
	if err != nil {
		return 0, err
	}
	return int(h.cf.Header.NumRecs(fi.Size())), nil
}

// sync publishes the record count and flushes the file to disk.
func (h *handle) sync() error {
	if err := cdf.UpdateNumRecs(h.file); err != nil {
		return errors.Wrap(err, "update record count")
	}
	return errors.Wrap(h.file.Sync(), "fsync")
}

func (h *handle) close() error {
	syncErr := h.sync()
	closeErr := h.file.Close()
	if syncErr != nil {
		return syncErr
	}
	return closeErr
}

// Manager owns the open dataset handles of a run. It holds at most one handle
// per path; paths are compared after cleaning and resolving to absolute form.
// CloseAll must run on every exit path of the owner.
type Manager struct {
	log logrus.FieldLogger

	mu      sync.Mutex
	handles map[string]*handle
}

// NewManager creates an empty handle manager.
func NewManager(log logrus.FieldLogger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{log: log, handles: map[string]*handle{}}
}

func key(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// acquire returns the cached handle for path, opening the file read-write
// when it is not cached yet.
func (m *Manager) acquire(path string) (*handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(path)
	if h, ok := m.handles[k]; ok {
		return h, nil
	}

	f, err := os.OpenFile(k, os.O_RDWR, 0)
	if err != nil {
		return nil, &domain.IOError{Op: "open dataset", Path: path, Err: err}
	}
	cf, err := cdf.Open(f)
	if err != nil {
		_ = f.Close()
		return nil, &domain.IOError{Op: "open dataset", Path: path, Err: errors.Wrap(err, "read header")}
	}
	h := &handle{path: k, file: f, cf: cf}
	h.rows, h.cols = gridShape(cf.Header)
	m.handles[k] = h
	m.log.WithField("path", k).Debug("reopened dataset")
	return h, nil
}

// adopt caches a freshly created handle, closing any previous one for the path.
func (m *Manager) adopt(h *handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.handles[h.path]; ok && old != h {
		if err := old.close(); err != nil {
			return &domain.IOError{Op: "close dataset", Path: old.path, Err: err}
		}
	}
	m.handles[h.path] = h
	return nil
}

// release drops the handle for path without flushing it.
func (m *Manager) release(path string) *handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(path)
	h := m.handles[k]
	delete(m.handles, k)
	return h
}

// IsOpen reports whether a handle for path is cached.
func (m *Manager) IsOpen(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.handles[key(path)]
	return ok
}

// Len returns the number of cached handles.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

// Close flushes and releases the handle for path. Closing a path that was
// never opened is a no-op.
func (m *Manager) Close(path string) error {
	h := m.release(path)
	if h == nil {
		return nil
	}
	if err := h.close(); err != nil {
		return &domain.IOError{Op: "close dataset", Path: h.path, Err: err}
	}
	m.log.WithField("path", h.path).Debug("closed dataset")
	return nil
}

// CloseAll flushes and releases every handle and returns the first error.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	paths := make([]string, 0, len(m.handles))
	for k := range m.handles {
		paths = append(paths, k)
	}
	m.mu.Unlock()
	sort.Strings(paths)

	var first error
	for _, p := range paths {
		if err := m.Close(p); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// gridShape reads the lat/lon dimension lengths of a header.
func gridShape(h *cdf.Header) (rows, cols int) {
	dims := h.Dimensions("")
	lengths := h.Lengths("")
	for i, d := range dims {
		switch d {
		case "lat":
			rows = lengths[i]
		case "lon":
			cols = lengths[i]
		}
	}
	return rows, cols
}
