package store

import "github.com/pingcap/errors"

var (
	ErrDatabaseAlreadyExist = errors.New("database already exists")
	ErrDatabaseNotExist     = errors.New("database does not exist")
	ErrTableAlreadyExist    = errors.New("table already exists")
	ErrTableNotExist        = errors.New("table does not exist")
	ErrSnapshotNotExist     = errors.New("snapshot does not exist")
	ErrCommitConflict       = errors.New("snapshot already committed by another writer")
	ErrUnsupported          = errors.New("unsupported table feature")
)

// IsAlreadyExist reports whether err means a database or table already exists.
func IsAlreadyExist(err error) bool {
	cause := errors.Cause(err)
	return cause == ErrDatabaseAlreadyExist || cause == ErrTableAlreadyExist
}

// IsNotExist reports whether err means a database, table or snapshot is missing.
func IsNotExist(err error) bool {
	cause := errors.Cause(err)
	return cause == ErrDatabaseNotExist || cause == ErrTableNotExist || cause == ErrSnapshotNotExist
}
