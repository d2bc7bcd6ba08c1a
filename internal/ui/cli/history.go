package cli

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"
	"time"

	"pycomplete/internal/core/errors"
	"pycomplete/internal/data/history"
	"pycomplete/internal/shared/util"
)

func runHistory(_ context.Context, e *env) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(e.errOut)
	limit := fs.Int("limit", 20, "Number of entries to show")
	session := fs.String("session", "", "Summarize the outcomes of one session")
	if err := fs.Parse(e.opts.args); err != nil {
		return errUsage
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(e.errOut, "history takes at most one file argument")
		return errUsage
	}

	if !e.cfg.History.Enabled {
		return errors.New(errors.CodeNotSupported, "parse journal is disabled (history.enabled = false)")
	}
	store, err := history.Open(e.paths.HistoryDB, e.cfg.History.BusyTimeout)
	if err != nil {
		return err
	}
	defer store.Close()

	if *session != "" {
		counts, err := store.Outcomes(*session)
		if err != nil {
			return err
		}
		if e.opts.jsonOut {
			return writeJSON(e, counts)
		}
		for _, outcome := range util.SortedStringKeys(counts) {
			fmt.Fprintf(e.out, "%s\t%d\n", outcome, counts[outcome])
		}
		return nil
	}

	entries, err := store.Recent(fs.Arg(0), *limit)
	if err != nil {
		return err
	}
	if e.opts.jsonOut {
		return writeJSON(e, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(e.out, "no parses recorded")
		return nil
	}

	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tOUTCOME\tIMPORTS\tDURATION\tPATH\tMESSAGE")
	for _, entry := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			entry.Timestamp.Local().Format(time.DateTime),
			entry.Outcome,
			entry.ImportCount,
			entry.Duration.Round(time.Millisecond),
			entry.Path,
			entry.Message,
		)
	}
	return tw.Flush()
}
