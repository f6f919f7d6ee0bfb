package store

import (
	"fmt"
	"strconv"
	"strings"
)

const defaultPartitionName = "__DEFAULT_PARTITION__"

// charToEscape is the set of characters escaped in partition directory names.
var charToEscape = func() [128]bool {
	var set [128]bool
	for c := 0; c < ' '; c++ {
		set[c] = true
	}
	for _, c := range "\"#%'*/:=?\\\x7F{[]^" {
		set[c] = true
	}
	return set
}()

func escapePathName(s string) string {
	if s == "" {
		return defaultPartitionName
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 128 && charToEscape[c] {
			fmt.Fprintf(&sb, "%%%02X", c)
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// partitionValueString renders a partition value the way it appears in directory names.
func partitionValueString(v any) string {
	switch val := v.(type) {
	case nil:
		return defaultPartitionName
	case string:
		return val
	case []byte:
		return string(val)
	case bool:
		return strconv.FormatBool(val)
	case int8:
		return strconv.FormatInt(int64(val), 10)
	case int16:
		return strconv.FormatInt(int64(val), 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// partitionPath returns "k1=v1/k2=v2/" for a partition, or "" for an unpartitioned table.
func partitionPath(partType RowType, values Row) string {
	var sb strings.Builder
	for i, f := range partType.Fields {
		sb.WriteString(escapePathName(f.Name))
		sb.WriteByte('=')
		if values[i] == nil {
			sb.WriteString(defaultPartitionName)
		} else {
			sb.WriteString(escapePathName(partitionValueString(values[i])))
		}
		sb.WriteByte('/')
	}
	return sb.String()
}

func bucketPath(partType RowType, partition Row, bucket int) string {
	return partitionPath(partType, partition) + "bucket-" + strconv.Itoa(bucket)
}
