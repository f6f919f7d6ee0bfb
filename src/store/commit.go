package store

import (
	"context"
	"math"
	"time"

	"github.com/pingcap/errors"
)

// BatchCommitIdentifier is the commit identifier of every batch commit.
const BatchCommitIdentifier = math.MaxInt64

// BatchTableCommit turns commit messages into a new snapshot.
type BatchTableCommit struct {
	table      *FileStoreTable
	commitUser string
	paths      *pathFactory
	committed  bool
}

// Commit publishes all files of msgs as one snapshot and returns it. Messages without
// files produce no snapshot and a nil result. A batch commit can be used only once.
func (c *BatchTableCommit) Commit(ctx context.Context, msgs []CommitMessage) (*Snapshot, error) {
	if c.committed {
		return nil, errors.New("batch commit can only be committed once")
	}
	c.committed = true

	var (
		entries  []ManifestEntry
		rowCount int64
	)
	for _, msg := range msgs {
		for _, f := range msg.NewFiles {
			entries = append(entries, ManifestEntry{
				Kind:         FileKindAdd,
				Partition:    msg.PartitionBytes,
				Bucket:       msg.Bucket,
				TotalBuckets: unawareTotalBucket,
				File:         f,
			})
			rowCount += f.RowCount
		}
	}
	if len(entries) == 0 {
		c.table.logger.Debug("nothing to commit")
		return nil, nil
	}

	sm := c.table.SnapshotManager()
	latest, err := sm.LatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	mio := c.table.newManifestIO(c.paths)
	var written []string
	cleanup := func() {
		for _, name := range written {
			if derr := c.table.store.DeleteFile(ctx, c.paths.manifestPath(name)); derr != nil {
				c.table.logger.Warn("failed to clean up manifest", "file", name, "err", derr)
			}
		}
	}

	deltaMeta, err := mio.writeManifest(ctx, entries, c.table.schema.ID)
	if err != nil {
		return nil, err
	}
	written = append(written, deltaMeta.FileName)

	var base []ManifestFileMeta
	nextID, total := int64(1), rowCount
	if latest != nil {
		nextID = latest.ID + 1
		total += latest.TotalRecordCount
		for _, list := range []string{latest.BaseManifestList, latest.DeltaManifestList} {
			metas, err := mio.readManifestList(ctx, list)
			if err != nil {
				cleanup()
				return nil, err
			}
			base = append(base, metas...)
		}
	}

	baseList, err := mio.writeManifestList(ctx, base)
	if err != nil {
		cleanup()
		return nil, err
	}
	written = append(written, baseList)
	deltaList, err := mio.writeManifestList(ctx, []ManifestFileMeta{deltaMeta})
	if err != nil {
		cleanup()
		return nil, err
	}
	written = append(written, deltaList)

	snapshot := &Snapshot{
		Version:           currentSnapshotVersion,
		ID:                nextID,
		SchemaID:          c.table.schema.ID,
		BaseManifestList:  baseList,
		DeltaManifestList: deltaList,
		CommitUser:        c.commitUser,
		CommitIdentifier:  BatchCommitIdentifier,
		CommitKind:        CommitKindAppend,
		TimeMillis:        time.Now().UnixMilli(),
		LogOffsets:        map[int32]int64{},
		TotalRecordCount:  total,
		DeltaRecordCount:  rowCount,
	}
	if err := sm.commit(ctx, snapshot); err != nil {
		// Other failures may come after the snapshot file landed, its manifests must stay.
		if errors.Cause(err) == ErrCommitConflict {
			cleanup()
		}
		return nil, err
	}
	c.table.logger.Info("committed snapshot", "snapshot", snapshot.ID, "files", len(entries),
		"rows", rowCount, "totalRows", total)
	return snapshot, nil
}

// Abort deletes the data files of msgs that were never committed.
func (c *BatchTableCommit) Abort(ctx context.Context, msgs []CommitMessage) error {
	for _, msg := range msgs {
		bucketDir := bucketPath(c.table.partType, msg.Partition, msg.Bucket)
		for _, f := range msg.NewFiles {
			if err := c.table.store.DeleteFile(ctx, c.paths.dataFilePath(bucketDir, f.FileName)); err != nil {
				return errors.Annotatef(err, "abort data file %s", f.FileName)
			}
		}
	}
	return nil
}

func (c *BatchTableCommit) Close() error {
	return nil
}
