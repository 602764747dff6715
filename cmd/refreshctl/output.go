package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/target/refresh-orchestrator/internal/domain/model"
	"github.com/target/refresh-orchestrator/internal/migrate"
	"github.com/target/refresh-orchestrator/internal/service"
)

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

// printResult writes v as indented JSON, or through text otherwise.
func printResult[T any](w io.Writer, asJSON bool, v T, text func(io.Writer, T) error) error {
	if !asJSON {
		return text(w, v)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

func printPassResult(w io.Writer, res *service.PassResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := []struct {
		label string
		value any
	}{
		{"Trigger", res.Trigger},
		{"Started", res.StartedAt.Format("2006-01-02T15:04:05Z07:00")},
		{"Duration", res.Duration},
		{"Timed out", res.TimedOut},
		{"Reconciled", res.Reconciled},
		{"Finished", res.Finished},
		{"Still pending", res.StillPending},
		{"Due", res.Due},
		{"Initiated", res.Initiated},
		{"Skipped", res.Skipped},
		{"Invalid schedules", res.InvalidSchedules},
		{"Errors", res.Errors},
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(tw, "%s:\t%v\n", row.label, row.value); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printRun(w io.Writer, run *model.RefreshJobRun) error {
	if run == nil {
		return writef(w, "Run: (none recorded)\n")
	}
	if err := writef(w, "Run %s (refresh job %s)\n", run.ID, run.RefreshJobID); err != nil {
		return err
	}
	if err := writef(w, "  Status:  %s\n", run.Status); err != nil {
		return err
	}
	if run.FireKey != nil {
		if err := writef(w, "  Fire key: %s\n", *run.FireKey); err != nil {
			return err
		}
	}
	return writef(w, "  Created: %s\n", run.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
}

func printInitiateResult(w io.Writer, res *service.InitiateResult) error {
	if err := printRun(w, res.Run); err != nil {
		return err
	}
	return writef(w, "  Queries: %d planned, %d dispatched, %d reused, %d failed\n",
		res.Planned, res.Dispatched, res.Reused, res.Failed)
}

func printFinishResult(w io.Writer, res *service.FinishResult) error {
	if err := printRun(w, res.Run); err != nil {
		return err
	}
	return writef(w, "  Outcome: %s (%d queries checked)\n", res.Outcome, res.Checked)
}

func printParameters(w io.Writer, params model.ResolvedParameters) error {
	if len(params) == 0 {
		return writef(w, "(no parameters)\n")
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "NAME\tEFFECTIVE\tORG DEFAULT"); err != nil {
		return err
	}
	for _, name := range names {
		p := params[name]
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\n", name, p.EffectiveValue, p.OrgDefaultValue); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printMigrations(w io.Writer, migrations []migrate.Migration) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "VERSION\tAPPLIED"); err != nil {
		return err
	}
	for _, m := range migrations {
		if _, err := fmt.Fprintf(tw, "%s\t%t\n", m.Version, m.Applied); err != nil {
			return err
		}
	}
	return tw.Flush()
}
