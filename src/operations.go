package main

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"paimonWriter/src/config"
	"paimonWriter/src/generator"
	"paimonWriter/src/spec"
	"paimonWriter/src/store"
	"paimonWriter/src/util"

	"github.com/docker/go-units"
	"github.com/pingcap/errors"
	"github.com/pingcap/tidb/br/pkg/storage"
)

func creationSchema(cfg *config.Config) (store.Schema, error) {
	if cfg.Table.SQLPath != "" {
		return spec.GetSchemaFromSQL(cfg.Table.SQLPath)
	}
	return spec.DefaultSchema()
}

// WriteRounds provisions the table and runs every commit round.
func WriteRounds(ctx context.Context, cfg *config.Config, progressInterval time.Duration, logger *slog.Logger) error {
	schema, err := creationSchema(cfg)
	if err != nil {
		return errors.Annotate(err, "creation schema")
	}

	es, err := config.GetStore(ctx, cfg)
	if err != nil {
		return errors.Trace(err)
	}
	defer es.Close()

	progress := util.NewProgressLogger(cfg.Common.CommitTimes, "committing", progressInterval)
	defer progress.Close()

	catalog := store.NewFileSystemCatalog(util.NewStorageWithStats(es, progress), logger)
	id := cfg.Identifier()
	res, err := generator.Provision(ctx, catalog, id, schema)
	if err != nil {
		return err
	}
	logger.Info("provisioned", "database", res.Database, "table", res.Table)

	table, err := catalog.GetTable(ctx, id)
	if err != nil {
		return err
	}
	if table, err = table.Copy(cfg.DynamicOptions()); err != nil {
		return err
	}

	_, err = generator.NewCommitter(cfg, table, progress, logger).Run(ctx)
	return err
}

func openTable(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.ExternalStorage, *store.FileStoreTable, error) {
	es, err := config.GetStore(ctx, cfg)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	table, err := store.NewFileSystemCatalog(es, logger).GetTable(ctx, cfg.Identifier())
	if err != nil {
		es.Close()
		return nil, nil, err
	}
	return es, table, nil
}

// ShowTable prints the schema, the snapshots and the files of the table.
func ShowTable(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	es, table, err := openTable(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer es.Close()

	fmt.Printf("Table %s\n\n", table.Identifier())
	fmt.Println(spec.FormatSchemaTable(table.Schema()))

	snapshots, err := table.SnapshotManager().Snapshots(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Snapshots (%d):\n", len(snapshots))
	fmt.Println(spec.FormatSnapshotsTable(snapshots))

	var files int
	var total int64
	err = es.WalkDir(ctx, &storage.WalkOption{SubDir: table.Location()}, func(p string, size int64) error {
		if !strings.HasSuffix(p, ".parquet") {
			return nil
		}
		files++
		total += size
		fmt.Printf("Name: %s, Size: %s\n", strings.TrimPrefix(p, table.Location()+"/"), units.BytesSize(float64(size)))
		return nil
	})
	if err != nil {
		return errors.Trace(err)
	}
	fmt.Printf("Data files: %d, Size: %s\n", files, units.BytesSize(float64(total)))
	return nil
}

// ScanTable prints the rows of the latest snapshot, or of the snapshots in (from, to].
func ScanTable(ctx context.Context, cfg *config.Config, from, to int64, threads, limit int, logger *slog.Logger) error {
	es, table, err := openTable(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer es.Close()

	rb := table.NewReadBuilder().WithThreads(threads)
	var plan *store.Plan
	switch {
	case from >= 0 && to > 0:
		plan, err = rb.PlanIncremental(ctx, from, to)
	case from >= 0:
		latest, ok, lerr := table.SnapshotManager().LatestSnapshotID(ctx)
		if lerr != nil {
			return lerr
		}
		if !ok || latest <= from {
			fmt.Println("No new snapshots")
			return nil
		}
		plan, err = rb.PlanIncremental(ctx, from, latest)
	case to > 0:
		plan, err = rb.PlanSnapshot(ctx, to)
	default:
		plan, err = rb.Plan(ctx)
	}
	if err != nil {
		return err
	}

	start := time.Now()
	rows, err := rb.Read(ctx, plan)
	if err != nil {
		return err
	}
	readType, err := rb.ReadType()
	if err != nil {
		return err
	}

	fmt.Println(strings.Join(readType.FieldNames(), "\t"))
	for i, row := range rows {
		if limit > 0 && i >= limit {
			fmt.Printf("... %d more rows\n", len(rows)-limit)
			break
		}
		vals := make([]string, len(row))
		for j, v := range row {
			if v == nil {
				vals[j] = "NULL"
			} else {
				vals[j] = fmt.Sprint(v)
			}
		}
		fmt.Println(strings.Join(vals, "\t"))
	}
	fmt.Printf("Read %d rows from %d splits at snapshot %d in %s\n",
		len(rows), len(plan.Splits), plan.SnapshotID, time.Since(start))
	return nil
}

// DropTable deletes every file of the table.
func DropTable(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	es, err := config.GetStore(ctx, cfg)
	if err != nil {
		return errors.Trace(err)
	}
	defer es.Close()

	start := time.Now()
	id := cfg.Identifier()
	if err := store.NewFileSystemCatalog(es, logger).DropTable(ctx, id, false); err != nil {
		return err
	}
	fmt.Printf("Dropped %s from %s in %s\n", id, path.Clean(cfg.Common.Path), time.Since(start))
	return nil
}
