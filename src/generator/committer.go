package generator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"paimonWriter/src/config"
	"paimonWriter/src/spec"
	"paimonWriter/src/store"
	"paimonWriter/src/util"

	"github.com/docker/go-units"
	"github.com/pingcap/errors"
)

// Summary describes a finished run.
type Summary struct {
	Rounds    int64
	Rows      int64
	FirstID   int64
	NextID    int64
	Snapshots []int64
	Elapsed   time.Duration
}

// Committer writes the synthetic rows of a run, one commit per round.
type Committer struct {
	cfg      *config.Config
	table    *store.FileStoreTable
	progress *util.ProgressLogger
	logger   *slog.Logger
	out      io.Writer
}

// NewCommitter creates a committer for table. progress and logger may be nil.
func NewCommitter(cfg *config.Config, table *store.FileStoreTable, progress *util.ProgressLogger, logger *slog.Logger) *Committer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Committer{
		cfg:      cfg,
		table:    table,
		progress: progress,
		logger:   logger,
		out:      os.Stdout,
	}
}

// SetOutput redirects the run summary.
func (c *Committer) SetOutput(w io.Writer) {
	c.out = w
}

// Run executes every round in order and stops at the first error.
func (c *Committer) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	common := c.cfg.Common
	summary := &Summary{FirstID: common.StartID, NextID: common.StartID}

	for round := int64(0); round < common.CommitTimes; round++ {
		snapshot, err := c.commitRound(ctx, summary.NextID, common.RowsPerCommit)
		if err != nil {
			summary.Elapsed = time.Since(start)
			fmt.Fprintf(c.out, "Write and commit failed at round %d after %s\n", round, summary.Elapsed)
			return summary, errors.Annotatef(err, "round %d", round)
		}
		summary.Rounds++
		summary.Rows += common.RowsPerCommit
		summary.NextID += common.RowsPerCommit
		if snapshot != nil {
			summary.Snapshots = append(summary.Snapshots, snapshot.ID)
		}
		c.progress.UpdateRounds(1)
	}

	summary.Elapsed = time.Since(start)
	c.printSummary(summary)
	return summary, nil
}

// commitRound writes rows [firstID, firstID+rows) and commits them. The writer, the
// scratch space and the commit only live for this round.
func (c *Committer) commitRound(ctx context.Context, firstID, rows int64) (*store.Snapshot, error) {
	iom, err := store.NewIOManager(c.cfg.ScratchRoot())
	if err != nil {
		return nil, err
	}
	//nolint: errcheck
	defer iom.Close()

	builder := c.table.NewBatchWriteBuilder()
	write, err := builder.NewWrite()
	if err != nil {
		return nil, err
	}
	//nolint: errcheck
	defer write.Close()
	write.WithIOManager(iom)

	types := c.table.RowType().FieldTypes()
	for id := firstID; id < firstID+rows; id++ {
		row, err := spec.GenerateRow(id, types)
		if err != nil {
			return nil, err
		}
		if err := write.Write(ctx, row); err != nil {
			return nil, errors.Annotatef(err, "write row %d", id)
		}
		c.progress.UpdateRows(1)
	}

	msgs, err := write.PrepareCommit(ctx)
	if err != nil {
		return nil, err
	}
	commit := builder.NewCommit()
	//nolint: errcheck
	defer commit.Close()
	snapshot, err := commit.Commit(ctx, msgs)
	if err != nil {
		return nil, err
	}

	if snapshot != nil {
		c.logger.Debug("round committed", "firstId", firstID, "rows", rows, "snapshot", snapshot.ID)
	}
	return snapshot, nil
}

func (c *Committer) printSummary(s *Summary) {
	var bytes int64
	if c.progress != nil {
		_, _, bytes = c.progress.Snapshot()
	}
	throughput := 0.0
	if s.Elapsed.Seconds() > 0 {
		throughput = float64(bytes) / s.Elapsed.Seconds()
	}

	fmt.Fprintln(c.out, "Summary:")
	fmt.Fprintf(c.out, "  Table: %s\n", c.table.Identifier())
	fmt.Fprintf(c.out, "  Rounds: %d\n", s.Rounds)
	fmt.Fprintf(c.out, "  Rows/Round: %d\n", c.cfg.Common.RowsPerCommit)
	fmt.Fprintf(c.out, "  Total Rows: %d\n", s.Rows)
	fmt.Fprintf(c.out, "  Ids: [%d, %d)\n", s.FirstID, s.NextID)
	fmt.Fprintf(c.out, "  Snapshots: %v\n", s.Snapshots)
	fmt.Fprintf(c.out, "  Bytes: %s\n", units.BytesSize(float64(bytes)))
	fmt.Fprintf(c.out, "  Throughput: %s/s\n", units.BytesSize(throughput))
	fmt.Fprintf(c.out, "  Took: %s\n", s.Elapsed)
	fmt.Fprintf(c.out, "  Path: %s\n", c.cfg.Common.Path)
}
