package config

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"paimonWriter/src/store"

	"github.com/docker/go-units"
	"github.com/pingcap/errors"
	"github.com/pingcap/tidb/br/pkg/storage"
)

// NumPositionalArgs is the number of positional arguments of a write run.
const NumPositionalArgs = 6

// Usage describes the positional arguments of a write run.
const Usage = "<rootPath> <database> <table> <startId> <rowsPerCommit> <commitTimes>"

// ErrUsage is returned when the positional arguments are missing or malformed.
var ErrUsage = errors.New("usage: paimon-writer [flags] " + Usage)

type S3Config struct {
	Region          string `toml:"region,omitempty"`
	AccessKey       string `toml:"access_key,omitempty"`
	SecretAccessKey string `toml:"secret_key,omitempty"`
	Provider        string `toml:"provider,omitempty"`
	Endpoint        string `toml:"endpoint,omitempty"`
	Force           bool   `toml:"force,omitempty"`
	RoleArn         string `toml:"role_arn,omitempty"`
}

type GCSConfig struct {
	Credential string `toml:"credential,omitempty"`
}

type CommonConfig struct {
	Path          string `toml:"path"`
	Database      string `toml:"database"`
	Table         string `toml:"table"`
	StartID       int64  `toml:"start_id"`
	RowsPerCommit int64  `toml:"rows_per_commit"`
	CommitTimes   int64  `toml:"commit_times"`
	// ScratchDir overrides where data files are staged before upload.
	ScratchDir string `toml:"scratch_dir"`
}

type TableConfig struct {
	// SQLPath points to a CREATE TABLE statement used instead of the default schema.
	SQLPath string            `toml:"sql"`
	Options map[string]string `toml:"options"`
}

type ParquetConfig struct {
	PageSize       string `toml:"page_size"`
	Compression    string `toml:"compression"`
	TargetFileSize string `toml:"target_file_size"`

	// Derived at runtime and not read from config.
	PageSizeBytes       int64 `toml:"-"`
	TargetFileSizeBytes int64 `toml:"-"`
}

type Config struct {
	Common    CommonConfig  `toml:"common"`
	Table     TableConfig   `toml:"table"`
	Parquet   ParquetConfig `toml:"parquet"`
	S3Config  *S3Config     `toml:"s3,omitempty"`
	GCSConfig *GCSConfig    `toml:"gcs,omitempty"`
}

// FromArgs fills cfg.Common from the positional arguments of a write run.
func FromArgs(cfg *Config, args []string) error {
	if len(args) < NumPositionalArgs {
		return errors.Annotatef(ErrUsage, "expected %d arguments, got %d", NumPositionalArgs, len(args))
	}
	cfg.Common.Path = args[0]
	cfg.Common.Database = args[1]
	cfg.Common.Table = args[2]

	nums := []*int64{&cfg.Common.StartID, &cfg.Common.RowsPerCommit, &cfg.Common.CommitTimes}
	names := []string{"startId", "rowsPerCommit", "commitTimes"}
	for i, dst := range nums {
		v, err := strconv.ParseInt(args[3+i], 10, 64)
		if err != nil {
			return errors.Annotatef(ErrUsage, "%s must be an integer, got %q", names[i], args[3+i])
		}
		*dst = v
	}
	return nil
}

// FromTableArgs fills the table location for operations that do not write.
func FromTableArgs(cfg *Config, args []string) error {
	if len(args) < 3 {
		return errors.Annotatef(ErrUsage, "expected <rootPath> <database> <table>, got %d arguments", len(args))
	}
	cfg.Common.Path = args[0]
	cfg.Common.Database = args[1]
	cfg.Common.Table = args[2]
	return nil
}

// Normalize resolves derived config values after loading.
func Normalize(cfg *Config) error {
	var err error
	if cfg.Parquet.PageSizeBytes, err = resolveSize("parquet.page_size", cfg.Parquet.PageSize); err != nil {
		return err
	}
	if cfg.Parquet.TargetFileSizeBytes, err = resolveSize("parquet.target_file_size", cfg.Parquet.TargetFileSize); err != nil {
		return err
	}
	return nil
}

func resolveSize(name, value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	bytes, err := units.RAMInBytes(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if bytes <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be greater than 0", name, value)
	}
	return bytes, nil
}

// Validate returns a user-friendly error if the configuration is invalid.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Common.Path == "" {
		errs = append(errs, "rootPath is required")
	}
	if cfg.Common.Database == "" {
		errs = append(errs, "database is required")
	} else if strings.ContainsAny(cfg.Common.Database, "/.") {
		errs = append(errs, "database must not contain '/' or '.'")
	}
	if cfg.Common.Table == "" {
		errs = append(errs, "table is required")
	} else if strings.Contains(cfg.Common.Table, "/") {
		errs = append(errs, "table must not contain '/'")
	}
	if cfg.Common.RowsPerCommit < 0 {
		errs = append(errs, "rowsPerCommit must be >= 0")
	}
	if cfg.Common.CommitTimes < 0 {
		errs = append(errs, "commitTimes must be >= 0")
	}

	if cfg.S3Config != nil && cfg.GCSConfig != nil {
		errs = append(errs, "only one of [s3] or [gcs] can be configured")
	}

	if len(errs) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("invalid config:\n")
	for _, err := range errs {
		sb.WriteString(" - ")
		sb.WriteString(err)
		sb.WriteString("\n")
	}
	return fmt.Errorf("%s", strings.TrimRight(sb.String(), "\n"))
}

// Identifier returns the table the run works on.
func (c *Config) Identifier() store.Identifier {
	return store.NewIdentifier(c.Common.Database, c.Common.Table)
}

// DynamicOptions returns table options that apply to this run only.
func (c *Config) DynamicOptions() map[string]string {
	options := make(map[string]string, len(c.Table.Options)+3)
	for k, v := range c.Table.Options {
		options[k] = v
	}
	if c.Parquet.Compression != "" {
		options[store.OptionFileCompression] = c.Parquet.Compression
	}
	if c.Parquet.PageSizeBytes > 0 {
		options[store.OptionParquetPageSize] = strconv.FormatInt(c.Parquet.PageSizeBytes, 10)
	}
	if c.Parquet.TargetFileSizeBytes > 0 {
		options[store.OptionTargetFileSize] = strconv.FormatInt(c.Parquet.TargetFileSizeBytes, 10)
	}
	return options
}

// ScratchRoot returns the local directory data files are staged in. It is the
// warehouse root for local paths and "" (the system temp dir) otherwise.
func (c *Config) ScratchRoot() string {
	if c.Common.ScratchDir != "" {
		return c.Common.ScratchDir
	}
	u, err := url.Parse(c.Common.Path)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "":
		return c.Common.Path
	case "file", "local":
		return u.Path
	default:
		return ""
	}
}

// GetStore initializes and returns an ExternalStorage instance based on the provided configuration.
func GetStore(ctx context.Context, c *Config) (storage.ExternalStorage, error) {
	var op *storage.BackendOptions
	if c.S3Config != nil {
		op = &storage.BackendOptions{S3: storage.S3BackendOptions{
			Region:          c.S3Config.Region,
			AccessKey:       c.S3Config.AccessKey,
			SecretAccessKey: c.S3Config.SecretAccessKey,
			Provider:        c.S3Config.Provider,
			Endpoint:        c.S3Config.Endpoint,
			RoleARN:         c.S3Config.RoleArn,
			ForcePathStyle:  c.S3Config.Force,
		}}
	} else if c.GCSConfig != nil {
		op = &storage.BackendOptions{GCS: storage.GCSBackendOptions{
			CredentialsFile: c.GCSConfig.Credential,
		}}
	}

	s, err := storage.ParseBackend(c.Common.Path, op)
	if err != nil {
		return nil, errors.Trace(err)
	}

	es, err := storage.NewWithDefaultOpt(ctx, s)
	return es, errors.Trace(err)
}
