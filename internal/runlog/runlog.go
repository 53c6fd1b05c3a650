// Package runlog keeps the ordered stage log of agent runs and writes it to
// disk.
package runlog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	dispatch "github.com/ZanzyTHEbar/dispatch-agent"
	"github.com/ZanzyTHEbar/errbuilder-go"
	"gopkg.in/yaml.v3"
)

// Format selects the encoding used by Encode.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Log is an append-only, concurrency-safe stage log. It implements
// dispatch.StageLog.
type Log struct {
	mu      sync.RWMutex
	entries []dispatch.LogEntry
}

// New creates an empty Log.
func New() *Log {
	return &Log{}
}

// Append adds entry to the end of the log.
func (l *Log) Append(entry dispatch.LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// Entries returns a snapshot of the log in append order.
func (l *Log) Entries() []dispatch.LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]dispatch.LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// EntriesFor returns the entries of one run in append order.
func (l *Log) EntriesFor(runID string) []dispatch.LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := []dispatch.LogEntry{}
	for _, entry := range l.entries {
		if entry.ID == runID {
			out = append(out, entry)
		}
	}
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// FormatFor picks YAML for .yaml and .yml paths and JSON otherwise.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// Encode writes the log to w.
func (l *Log) Encode(w io.Writer, format Format) error {
	entries := l.Entries()

	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return errbuilder.GenericErr("failed to encode stage log as yaml", err)
		}
		if err := enc.Close(); err != nil {
			return errbuilder.GenericErr("failed to encode stage log as yaml", err)
		}
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			return errbuilder.GenericErr("failed to encode stage log as json", err)
		}
	default:
		return errbuilder.GenericErr(fmt.Sprintf("unsupported stage log format %q", format), nil)
	}
	return nil
}

// Dump writes the whole log to path, replacing the file. The format follows
// the file extension.
func (l *Log) Dump(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errbuilder.GenericErr(fmt.Sprintf("failed to create stage log %s", path), err)
	}
	if err := l.Encode(f, FormatFor(path)); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errbuilder.GenericErr(fmt.Sprintf("failed to close stage log %s", path), err)
	}
	return nil
}
