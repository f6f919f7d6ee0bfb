package spec

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"paimonWriter/src/store"
)

// FormatSchemaTable renders a human-readable table for a table schema.
func FormatSchemaTable(s *store.TableSchema) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	partitionKeys := make(map[string]bool)
	for _, k := range s.PartitionKeys {
		partitionKeys[k] = true
	}
	primaryKeys := make(map[string]bool)
	for _, k := range s.PrimaryKeys {
		primaryKeys[k] = true
	}

	fmt.Fprintln(w, "ID\tName\tType\tKey\tGenerated\tComment")
	for _, f := range s.Fields {
		var keys []string
		if partitionKeys[f.Name] {
			keys = append(keys, "partition")
		}
		if primaryKeys[f.Name] {
			keys = append(keys, "primary")
		}
		key := "-"
		if len(keys) > 0 {
			key = strings.Join(keys, ",")
		}

		generated := "no"
		if IsSupported(f.Type) {
			generated = "yes"
		}

		comment := "-"
		if f.Description != "" {
			comment = f.Description
		}

		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			f.ID,
			f.Name,
			f.Type,
			key,
			generated,
			comment,
		)
	}
	_ = w.Flush()

	if len(s.Options) > 0 {
		keys := make([]string, 0, len(s.Options))
		for k := range s.Options {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteString("\nOptions:\n")
		for _, k := range keys {
			buf.WriteString("  " + k + " = " + s.Options[k] + "\n")
		}
	}
	return buf.String()
}

// FormatSnapshotsTable renders one line per snapshot.
func FormatSnapshotsTable(snapshots []*store.Snapshot) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "ID\tSchema\tKind\tDelta rows\tTotal rows\tCommit user")
	for _, s := range snapshots {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\n",
			s.ID,
			s.SchemaID,
			s.CommitKind,
			strconv.FormatInt(s.DeltaRecordCount, 10),
			strconv.FormatInt(s.TotalRecordCount, 10),
			s.CommitUser,
		)
	}
	_ = w.Flush()
	return buf.String()
}
