package store

import (
	"context"
	"encoding/json"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/pingcap/errors"
	"github.com/pingcap/tidb/br/pkg/storage"
)

const (
	snapshotDir    = "snapshot"
	snapshotPrefix = "snapshot-"
	latestHint     = "LATEST"
	earliestHint   = "EARLIEST"

	currentSnapshotVersion = 3
)

// CommitKind describes what a snapshot changed.
type CommitKind string

const (
	CommitKindAppend    CommitKind = "APPEND"
	CommitKindCompact   CommitKind = "COMPACT"
	CommitKindOverwrite CommitKind = "OVERWRITE"
)

// Snapshot is the state of a table after one commit, stored as snapshot/snapshot-<id>.
type Snapshot struct {
	Version               int             `json:"version"`
	ID                    int64           `json:"id"`
	SchemaID              int64           `json:"schemaId"`
	BaseManifestList      string          `json:"baseManifestList"`
	DeltaManifestList     string          `json:"deltaManifestList"`
	ChangelogManifestList *string         `json:"changelogManifestList"`
	CommitUser            string          `json:"commitUser"`
	CommitIdentifier      int64           `json:"commitIdentifier"`
	CommitKind            CommitKind      `json:"commitKind"`
	TimeMillis            int64           `json:"timeMillis"`
	LogOffsets            map[int32]int64 `json:"logOffsets"`
	TotalRecordCount      int64           `json:"totalRecordCount"`
	DeltaRecordCount      int64           `json:"deltaRecordCount"`
	ChangelogRecordCount  int64           `json:"changelogRecordCount"`
	Watermark             *int64          `json:"watermark,omitempty"`
}

func decodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Annotate(err, "decode snapshot")
	}
	return &s, nil
}

// SnapshotManager reads and publishes the snapshots of one table.
type SnapshotManager struct {
	store     storage.ExternalStorage
	tablePath string
}

func newSnapshotManager(store storage.ExternalStorage, tablePath string) *SnapshotManager {
	return &SnapshotManager{store: store, tablePath: tablePath}
}

func (m *SnapshotManager) snapshotPath(id int64) string {
	return path.Join(m.tablePath, snapshotDir, snapshotPrefix+strconv.FormatInt(id, 10))
}

func (m *SnapshotManager) hintPath(name string) string {
	return path.Join(m.tablePath, snapshotDir, name)
}

// SnapshotExists reports whether snapshot id has been committed.
func (m *SnapshotManager) SnapshotExists(ctx context.Context, id int64) (bool, error) {
	exists, err := m.store.FileExists(ctx, m.snapshotPath(id))
	return exists, errors.Trace(err)
}

// Snapshot loads snapshot id.
func (m *SnapshotManager) Snapshot(ctx context.Context, id int64) (*Snapshot, error) {
	exists, err := m.SnapshotExists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.Annotatef(ErrSnapshotNotExist, "snapshot %d of %s", id, m.tablePath)
	}
	data, err := m.store.ReadFile(ctx, m.snapshotPath(id))
	if err != nil {
		return nil, errors.Trace(err)
	}
	return decodeSnapshot(data)
}

// LatestSnapshotID returns the id of the newest snapshot. ok is false for a table without snapshots.
func (m *SnapshotManager) LatestSnapshotID(ctx context.Context) (id int64, ok bool, err error) {
	if hint, found, err := m.readHint(ctx, latestHint); err != nil {
		return 0, false, err
	} else if found {
		// The hint is written after the snapshot, so a newer snapshot may exist.
		for {
			next, err := m.SnapshotExists(ctx, hint+1)
			if err != nil {
				return 0, false, err
			}
			if !next {
				break
			}
			hint++
		}
		exists, err := m.SnapshotExists(ctx, hint)
		if err != nil {
			return 0, false, err
		}
		if exists {
			return hint, true, nil
		}
	}

	ids, err := m.listSnapshotIDs(ctx)
	if err != nil || len(ids) == 0 {
		return 0, false, err
	}
	return ids[len(ids)-1], true, nil
}

// EarliestSnapshotID returns the id of the oldest retained snapshot.
func (m *SnapshotManager) EarliestSnapshotID(ctx context.Context) (int64, bool, error) {
	if hint, found, err := m.readHint(ctx, earliestHint); err != nil {
		return 0, false, err
	} else if found {
		exists, err := m.SnapshotExists(ctx, hint)
		if err != nil {
			return 0, false, err
		}
		if exists {
			return hint, true, nil
		}
	}
	ids, err := m.listSnapshotIDs(ctx)
	if err != nil || len(ids) == 0 {
		return 0, false, err
	}
	return ids[0], true, nil
}

// LatestSnapshot loads the newest snapshot, or returns nil for an empty table.
func (m *SnapshotManager) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	id, ok, err := m.LatestSnapshotID(ctx)
	if err != nil || !ok {
		return nil, err
	}
	return m.Snapshot(ctx, id)
}

// Snapshots returns all retained snapshots in id order.
func (m *SnapshotManager) Snapshots(ctx context.Context) ([]*Snapshot, error) {
	ids, err := m.listSnapshotIDs(ctx)
	if err != nil {
		return nil, err
	}
	snapshots := make([]*Snapshot, 0, len(ids))
	for _, id := range ids {
		s, err := m.Snapshot(ctx, id)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, nil
}

func (m *SnapshotManager) listSnapshotIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := m.store.WalkDir(ctx, &storage.WalkOption{SubDir: path.Join(m.tablePath, snapshotDir)},
		func(p string, _ int64) error {
			name := path.Base(p)
			if !strings.HasPrefix(name, snapshotPrefix) {
				return nil
			}
			id, err := strconv.ParseInt(strings.TrimPrefix(name, snapshotPrefix), 10, 64)
			if err != nil {
				// Temporary files of an in-flight write.
				return nil
			}
			ids = append(ids, id)
			return nil
		})
	if err != nil {
		return nil, errors.Trace(err)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *SnapshotManager) readHint(ctx context.Context, name string) (int64, bool, error) {
	p := m.hintPath(name)
	exists, err := m.store.FileExists(ctx, p)
	if err != nil || !exists {
		return 0, false, errors.Trace(err)
	}
	data, err := m.store.ReadFile(ctx, p)
	if err != nil {
		return 0, false, errors.Trace(err)
	}
	id, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		// A torn hint is ignored, the directory listing is authoritative.
		return 0, false, nil
	}
	return id, true, nil
}

// commit publishes s. It fails with ErrCommitConflict when the id is already taken.
func (m *SnapshotManager) commit(ctx context.Context, s *Snapshot) error {
	exists, err := m.SnapshotExists(ctx, s.ID)
	if err != nil {
		return err
	}
	if exists {
		return errors.Annotatef(ErrCommitConflict, "snapshot %d of %s", s.ID, m.tablePath)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Trace(err)
	}
	if err := m.store.WriteFile(ctx, m.snapshotPath(s.ID), data); err != nil {
		return errors.Annotatef(err, "write snapshot %d", s.ID)
	}

	id := []byte(strconv.FormatInt(s.ID, 10))
	if err := m.store.WriteFile(ctx, m.hintPath(latestHint), id); err != nil {
		return errors.Annotate(err, "write LATEST hint")
	}
	if s.ID == 1 {
		if err := m.store.WriteFile(ctx, m.hintPath(earliestHint), id); err != nil {
			return errors.Annotate(err, "write EARLIEST hint")
		}
	}
	return nil
}
