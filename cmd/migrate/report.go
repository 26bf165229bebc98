package main

import (
	"fmt"
	"io"
	"path"
	"text/tabwriter"

	"github.com/pressly/goose/v3"
)

func printStatus(w io.Writer, statuses []*goose.MigrationStatus) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT\tFILE")
	for _, st := range statuses {
		applied := "-"
		if !st.AppliedAt.IsZero() {
			applied = st.AppliedAt.UTC().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", st.Source.Version, st.State, applied, path.Base(st.Source.Path))
	}
	_ = tw.Flush()
}

func resultFields(res *goose.MigrationResult) map[string]any {
	fields := map[string]any{
		"direction":   res.Direction,
		"duration_ms": res.Duration.Milliseconds(),
		"empty":       res.Empty,
	}
	if res.Source != nil {
		fields["version"] = res.Source.Version
		fields["file"] = path.Base(res.Source.Path)
	}
	return fields
}
