package util

import (
	"context"

	"github.com/pingcap/errors"
	"github.com/pingcap/tidb/br/pkg/storage"
)

// writerWithStats wraps a writer and updates progress for bytes written.
type writerWithStats struct {
	writer   storage.ExternalFileWriter
	progress *ProgressLogger
}

func (cw *writerWithStats) Write(ctx context.Context, p []byte) (int, error) {
	n, err := cw.writer.Write(ctx, p)
	cw.progress.UpdateBytes(int64(n))
	return n, err
}

func (cw *writerWithStats) Close(ctx context.Context) error {
	return cw.writer.Close(ctx)
}

// StorageWithStats reports every byte written through it to a progress logger.
type StorageWithStats struct {
	storage.ExternalStorage
	progress *ProgressLogger
}

// NewStorageWithStats wraps store. A nil progress logger counts nothing.
func NewStorageWithStats(store storage.ExternalStorage, progress *ProgressLogger) *StorageWithStats {
	return &StorageWithStats{ExternalStorage: store, progress: progress}
}

func (s *StorageWithStats) WriteFile(ctx context.Context, name string, data []byte) error {
	if err := s.ExternalStorage.WriteFile(ctx, name, data); err != nil {
		return err
	}
	s.progress.UpdateBytes(int64(len(data)))
	return nil
}

func (s *StorageWithStats) Create(ctx context.Context, name string, option *storage.WriterOption) (storage.ExternalFileWriter, error) {
	writer, err := s.ExternalStorage.Create(ctx, name, option)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &writerWithStats{writer: writer, progress: s.progress}, nil
}
