package spec

import (
	"os"
	"strings"

	"paimonWriter/src/store"

	"github.com/pingcap/errors"
	"github.com/pingcap/tidb/pkg/ddl"
	"github.com/pingcap/tidb/pkg/meta/model"
	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/mysql"
	_ "github.com/pingcap/tidb/pkg/planner/core" // to setup expression.EvalSimpleAst for in core_init
	"github.com/pingcap/tidb/pkg/types"

	_ "github.com/pingcap/tidb/pkg/util/collate"
	"github.com/pingcap/tidb/pkg/util/mock"
)

// Columns of the schema a missing table is created with.
const (
	DefaultPartitionColumn = "f_string"
	DefaultIntColumn       = "f_int"
	DefaultBigintColumn    = "f_bigint"
)

// DefaultSchema is f_string STRING, f_int INT, f_bigint BIGINT partitioned by f_string.
func DefaultSchema() (store.Schema, error) {
	return store.NewSchemaBuilder().
		Column(DefaultPartitionColumn, store.StringType()).
		Column(DefaultIntColumn, store.IntType()).
		Column(DefaultBigintColumn, store.BigintType()).
		PartitionKeys(DefaultPartitionColumn).
		Build()
}

func splitCommentOpts(comment string) ([]string, error) {
	var (
		opts     []string
		start    int
		inQuotes bool
	)

	for i := range comment {
		switch comment[i] {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				if opt := strings.TrimSpace(comment[start:i]); opt != "" {
					opts = append(opts, opt)
				}
				start = i + 1
			}
		}
	}

	if inQuotes {
		return nil, errors.Errorf("malformed comment: %q", comment)
	}
	if opt := strings.TrimSpace(comment[start:]); opt != "" {
		opts = append(opts, opt)
	}
	return opts, nil
}

// parseTableOptions reads "key=value" pairs from a table comment. Values may be quoted.
func parseTableOptions(comment string) (map[string]string, error) {
	options := make(map[string]string)
	opts, err := splitCommentOpts(comment)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		k, v, ok := strings.Cut(opt, "=")
		if !ok {
			return nil, errors.Errorf("malformed table option: %q", opt)
		}
		options[strings.TrimSpace(k)] = strings.Trim(strings.TrimSpace(v), `"`)
	}
	return options, nil
}

func getTableInfoBySQL(createTableSQL string) (*model.TableInfo, []string, error) {
	p := parser.New()
	p.SetSQLMode(mysql.ModeANSIQuotes)

	stmt, err := p.ParseOneStmt(createTableSQL, "", "")
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	s, ok := stmt.(*ast.CreateTableStmt)
	if !ok {
		return nil, nil, errors.New("not a CREATE TABLE statement")
	}

	// Partitioning only names the partition keys, it is not part of the column layout.
	var partitionKeys []string
	if s.Partition != nil {
		if len(s.Partition.ColumnNames) == 0 {
			return nil, nil, errors.New("only PARTITION BY KEY(...) or COLUMNS(...) is supported")
		}
		for _, col := range s.Partition.ColumnNames {
			partitionKeys = append(partitionKeys, col.Name.O)
		}
		s.Partition = nil
	}

	metaBuildCtx := ddl.NewMetaBuildContextWithSctx(mock.NewContext())
	tbInfo, err := ddl.BuildTableInfoWithStmt(metaBuildCtx, s, mysql.DefaultCharset, "", nil)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	return tbInfo, partitionKeys, nil
}

// readAndCleanSQL reads SQL file and cleans up comments and extra content
func readAndCleanSQL(sqlPath string) (string, error) {
	data, err := os.ReadFile(sqlPath)
	if err != nil {
		return "", errors.Trace(err)
	}

	// Skip lines that start with /* at the beginning of the file
	lines := strings.Split(string(data), "\n")
	startIndex := 0
	for i, line := range lines {
		trimmedLine := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmedLine, "/*") && trimmedLine != "" {
			startIndex = i
			break
		}
	}
	query := strings.Join(lines[startIndex:], "\n")

	// Drop anything after the statement terminator.
	if end := strings.LastIndex(query, ";"); end != -1 {
		query = query[:end]
	}
	return query + ";", nil
}

func columnType(col *model.ColumnInfo) (store.DataType, error) {
	ft := &col.FieldType
	var t store.DataType
	switch col.GetType() {
	case mysql.TypeTiny:
		t = store.TinyintType()
	case mysql.TypeShort:
		t = store.SmallintType()
	case mysql.TypeInt24, mysql.TypeLong:
		t = store.IntType()
	case mysql.TypeLonglong:
		t = store.BigintType()
	case mysql.TypeFloat:
		t = store.FloatType()
	case mysql.TypeDouble:
		t = store.DoubleType()
	case mysql.TypeNewDecimal:
		t = store.DataType{Root: store.Decimal, Length: col.GetFlen(), Scale: col.GetDecimal(), Nullable: true}
	case mysql.TypeDate:
		t = store.DataType{Root: store.Date, Nullable: true}
	case mysql.TypeTimestamp, mysql.TypeDatetime:
		t = store.DataType{Root: store.Timestamp, Length: max(col.GetDecimal(), 0), Nullable: true}
	case mysql.TypeString:
		root := store.Char
		if types.IsBinaryStr(ft) {
			root = store.Binary
		}
		t = store.DataType{Root: root, Length: max(col.GetFlen(), 1), Nullable: true}
	case mysql.TypeVarchar, mysql.TypeVarString:
		root := store.Varchar
		if types.IsBinaryStr(ft) {
			root = store.Varbinary
		}
		t = store.DataType{Root: root, Length: max(col.GetFlen(), 1), Nullable: true}
	case mysql.TypeTinyBlob, mysql.TypeBlob, mysql.TypeMediumBlob, mysql.TypeLongBlob, mysql.TypeJSON:
		t = store.StringType()
		if types.IsBinaryStr(ft) {
			t = store.BytesType()
		}
	default:
		return store.DataType{}, errors.Errorf("unsupported column type %s of column %s", ft.String(), col.Name.O)
	}
	if mysql.HasNotNullFlag(col.GetFlag()) {
		t = t.NotNull()
	}
	return t, nil
}

// GetSchemaFromSQL converts a CREATE TABLE file into a table schema. Column comments
// become field descriptions and the table comment carries "key=value" table options.
func GetSchemaFromSQL(sqlPath string) (store.Schema, error) {
	query, err := readAndCleanSQL(sqlPath)
	if err != nil {
		return store.Schema{}, err
	}
	tbInfo, partitionKeys, err := getTableInfoBySQL(query)
	if err != nil {
		return store.Schema{}, err
	}

	var primaryKeys []string
	if tbInfo.PKIsHandle {
		for _, col := range tbInfo.Columns {
			if mysql.HasPriKeyFlag(col.GetFlag()) {
				primaryKeys = append(primaryKeys, col.Name.O)
				break
			}
		}
	}
	for _, index := range tbInfo.Indices {
		if index.Primary {
			for _, col := range index.Columns {
				primaryKeys = append(primaryKeys, tbInfo.Columns[col.Offset].Name.O)
			}
		}
	}
	isPK := make(map[string]bool, len(primaryKeys))
	for _, k := range primaryKeys {
		isPK[k] = true
	}

	b := store.NewSchemaBuilder()
	for _, col := range tbInfo.Columns {
		t, err := columnType(col)
		if err != nil {
			return store.Schema{}, err
		}
		if isPK[col.Name.O] {
			t = t.NotNull()
		}
		b.ColumnWithDescription(col.Name.O, t, col.Comment)
	}
	b.PartitionKeys(partitionKeys...)
	b.PrimaryKey(primaryKeys...)

	if tbInfo.Comment != "" {
		options, err := parseTableOptions(tbInfo.Comment)
		if err != nil {
			return store.Schema{}, err
		}
		for k, v := range options {
			b.Option(k, v)
		}
	}
	return b.Build()
}
