// Package remote is the shared cache tier. Snapshots are gzip JSON
// objects laid out as pricing/{type}/{cadence}/{date}.json.gz so any
// deployment pointing at the same bucket can read them.
package remote

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/newthinker/nisab/internal/core"
	"github.com/newthinker/nisab/internal/storage/archive"
)

const (
	rootDir = "pricing"
	ext     = ".json.gz"
)

// Entry is one object found by List.
type Entry struct {
	DataType core.DataType
	Cadence  core.Cadence
	Date     time.Time
	Path     string
}

// Store reads and writes snapshots over a blob backend.
type Store struct {
	blobs archive.Storage
}

func New(blobs archive.Storage) *Store {
	return &Store{blobs: blobs}
}

// Path returns the object path of a snapshot, without the bucket prefix.
func Path(dt core.DataType, c core.Cadence, date time.Time) string {
	return path.Join(rootDir, string(dt), string(c), core.FormatDate(date)+ext)
}

// ParsePath is the inverse of Path.
func ParsePath(p string) (Entry, error) {
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	if len(parts) < 4 || parts[len(parts)-4] != rootDir || !strings.HasSuffix(p, ext) {
		return Entry{}, fmt.Errorf("not a snapshot path: %q", p)
	}
	parts = parts[len(parts)-4:]

	dt, err := core.ParseDataType(parts[1])
	if err != nil {
		return Entry{}, err
	}
	c := core.Cadence(parts[2])
	switch c {
	case core.CadenceDaily, core.CadenceWeekly, core.CadenceMonthly:
	default:
		return Entry{}, fmt.Errorf("unknown cadence in %q", p)
	}
	date, err := core.ParseDate(strings.TrimSuffix(parts[3], ext))
	if err != nil {
		return Entry{}, err
	}
	return Entry{DataType: dt, Cadence: c, Date: date, Path: p}, nil
}

// Get returns core.ErrSnapshotNotFound when the object is absent and
// core.ErrRemoteIO for any other failure.
func (s *Store) Get(ctx context.Context, dt core.DataType, c core.Cadence, date time.Time) (*core.Snapshot, error) {
	p := Path(dt, c, date)
	data, err := s.blobs.Read(ctx, p)
	if errors.Is(err, archive.ErrNotFound) {
		return nil, core.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, core.WrapError(core.ErrRemoteIO, err)
	}

	snap, err := Decode(data)
	if err != nil {
		return nil, core.WrapError(core.ErrRemoteIO, fmt.Errorf("%s: %w", p, err))
	}
	if snap.DataType != dt || !snap.Date.Equal(core.Day(date)) {
		return nil, core.WrapError(core.ErrRemoteIO, fmt.Errorf("%s: object holds %s", p, snap.Key()))
	}
	return snap, nil
}

// Put uploads the snapshot, replacing any object at its path.
func (s *Store) Put(ctx context.Context, snap *core.Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return core.WrapError(core.ErrRemoteIO, err)
	}
	if err := s.blobs.Write(ctx, Path(snap.DataType, snap.Cadence, snap.Date), data); err != nil {
		return core.WrapError(core.ErrRemoteIO, err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, dt core.DataType, c core.Cadence, date time.Time) (bool, error) {
	ok, err := s.blobs.Exists(ctx, Path(dt, c, date))
	if err != nil {
		return false, core.WrapError(core.ErrRemoteIO, err)
	}
	return ok, nil
}

// List returns the snapshots stored for a data type, optionally narrowed
// to one cadence. Objects that do not follow the layout are skipped.
func (s *Store) List(ctx context.Context, dt core.DataType, c core.Cadence) ([]Entry, error) {
	prefix := path.Join(rootDir, string(dt))
	if c != "" {
		prefix = path.Join(prefix, string(c))
	}
	paths, err := s.blobs.List(ctx, prefix+"/")
	if err != nil {
		return nil, core.WrapError(core.ErrRemoteIO, err)
	}

	out := make([]Entry, 0, len(paths))
	for _, p := range paths {
		e, err := ParsePath(p)
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
