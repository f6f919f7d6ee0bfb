package store

import (
	"context"
	"path"
	"strconv"

	"github.com/pingcap/errors"
	"golang.org/x/sync/errgroup"
)

const defaultReadThreads = 4

// Split is the set of files of one partition and bucket to read.
type Split struct {
	Partition Row
	Bucket    int
	Files     []DataFileMeta
}

func (s Split) RowCount() int64 {
	var n int64
	for _, f := range s.Files {
		n += f.RowCount
	}
	return n
}

// Plan is the result of a scan. SnapshotID is 0 when the table has no snapshot yet.
type Plan struct {
	SnapshotID int64
	Splits     []Split
}

func (p *Plan) RowCount() int64 {
	var n int64
	for _, s := range p.Splits {
		n += s.RowCount()
	}
	return n
}

// ReadBuilder configures scans and reads of a table.
type ReadBuilder struct {
	table      *FileStoreTable
	projection []string
	threads    int
}

// WithProjection limits reads to the named columns, in that order.
func (b *ReadBuilder) WithProjection(names ...string) *ReadBuilder {
	b.projection = names
	return b
}

// WithThreads sets how many data files are read concurrently.
func (b *ReadBuilder) WithThreads(n int) *ReadBuilder {
	b.threads = n
	return b
}

// ReadType returns the row type produced by reads.
func (b *ReadBuilder) ReadType() (RowType, error) {
	if len(b.projection) == 0 {
		return b.table.RowType(), nil
	}
	t, _, err := b.table.RowType().Project(b.projection)
	return t, err
}

func (b *ReadBuilder) manifestIO() *manifestIO {
	return b.table.newManifestIO(newPathFactory(b.table.Location()))
}

// Plan scans the latest snapshot in full.
func (b *ReadBuilder) Plan(ctx context.Context) (*Plan, error) {
	id, ok, err := b.table.SnapshotManager().LatestSnapshotID(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Plan{}, nil
	}
	return b.PlanSnapshot(ctx, id)
}

// PlanSnapshot scans every live file of snapshot id.
func (b *ReadBuilder) PlanSnapshot(ctx context.Context, id int64) (*Plan, error) {
	snapshot, err := b.table.SnapshotManager().Snapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, err := b.manifestIO().readEntries(ctx, snapshot.BaseManifestList, snapshot.DeltaManifestList)
	if err != nil {
		return nil, err
	}
	splits, err := b.toSplits(mergeEntries(entries))
	if err != nil {
		return nil, err
	}
	return &Plan{SnapshotID: id, Splits: splits}, nil
}

// PlanIncremental scans the files appended by snapshots in (from, to].
func (b *ReadBuilder) PlanIncremental(ctx context.Context, from, to int64) (*Plan, error) {
	if from < 0 || to <= from {
		return nil, errors.Errorf("invalid incremental range (%d, %d]", from, to)
	}
	sm := b.table.SnapshotManager()
	mio := b.manifestIO()
	var entries []ManifestEntry
	for id := from + 1; id <= to; id++ {
		snapshot, err := sm.Snapshot(ctx, id)
		if err != nil {
			return nil, err
		}
		if snapshot.CommitKind != CommitKindAppend {
			continue
		}
		delta, err := mio.readEntries(ctx, snapshot.DeltaManifestList)
		if err != nil {
			return nil, err
		}
		for _, e := range delta {
			if e.Kind == FileKindAdd {
				entries = append(entries, e)
			}
		}
	}
	splits, err := b.toSplits(entries)
	if err != nil {
		return nil, err
	}
	return &Plan{SnapshotID: to, Splits: splits}, nil
}

func (b *ReadBuilder) toSplits(entries []ManifestEntry) ([]Split, error) {
	partTypes := b.table.partType.FieldTypes()
	index := make(map[string]int)
	var splits []Split
	for _, e := range entries {
		key := string(e.Partition) + "\x00" + strconv.Itoa(e.Bucket)
		i, ok := index[key]
		if !ok {
			partition, err := deserializeBinaryRow(e.Partition, partTypes)
			if err != nil {
				return nil, errors.Annotatef(err, "partition of %s", e.File.FileName)
			}
			i = len(splits)
			index[key] = i
			splits = append(splits, Split{Partition: partition, Bucket: e.Bucket})
		}
		splits[i].Files = append(splits[i].Files, e.File)
	}
	return splits, nil
}

// Read loads the rows of every split of plan. Rows keep the order of the plan.
func (b *ReadBuilder) Read(ctx context.Context, plan *Plan) ([]Row, error) {
	readType, err := b.ReadType()
	if err != nil {
		return nil, err
	}
	var files []string
	for _, s := range plan.Splits {
		bucketDir := bucketPath(b.table.partType, s.Partition, s.Bucket)
		for _, f := range s.Files {
			files = append(files, path.Join(b.table.Location(), bucketDir, f.FileName))
		}
	}

	threads := b.threads
	if threads <= 0 {
		threads = defaultReadThreads
	}
	results := make([][]Row, len(files))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(threads)
	for i, p := range files {
		eg.Go(func() error {
			rows, err := readDataFile(egCtx, b.table.store, p, readType)
			if err != nil {
				return err
			}
			results[i] = rows
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var rows []Row
	for _, r := range results {
		rows = append(rows, r...)
	}
	return rows, nil
}
