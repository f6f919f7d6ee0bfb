package store

import (
	"path"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

const (
	manifestDir          = "manifest"
	manifestPrefix       = "manifest-"
	manifestListPrefix   = "manifest-list-"
	dataFilePrefix       = "data-"
	databaseSuffix       = ".db"
	databaseMarkerFile   = "database.json"
	schemaDir            = "schema"
	schemaPrefix         = "schema-"
	parquetFileExtension = ".parquet"
)

// pathFactory hands out unique file names. Every writer or committer owns one, the
// uuid keeps names from different processes apart and the counter within one.
type pathFactory struct {
	tablePath string
	uuid      string

	manifestCount     atomic.Int64
	manifestListCount atomic.Int64
	dataFileCount     atomic.Int64
}

func newPathFactory(tablePath string) *pathFactory {
	return &pathFactory{tablePath: tablePath, uuid: uuid.New().String()}
}

func (f *pathFactory) newManifestFile() string {
	return manifestPrefix + f.uuid + "-" + strconv.FormatInt(f.manifestCount.Add(1)-1, 10)
}

func (f *pathFactory) newManifestList() string {
	return manifestListPrefix + f.uuid + "-" + strconv.FormatInt(f.manifestListCount.Add(1)-1, 10)
}

func (f *pathFactory) newDataFile() string {
	return dataFilePrefix + f.uuid + "-" + strconv.FormatInt(f.dataFileCount.Add(1)-1, 10) + parquetFileExtension
}

func (f *pathFactory) manifestPath(name string) string {
	return path.Join(f.tablePath, manifestDir, name)
}

func (f *pathFactory) dataFilePath(bucketDir, name string) string {
	return path.Join(f.tablePath, bucketDir, name)
}

func databasePath(database string) string {
	return database + databaseSuffix
}

func tablePath(id Identifier) string {
	return path.Join(databasePath(id.Database), id.Table)
}
