package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/example/session-planner/internal/application"
	"github.com/example/session-planner/internal/calendar"
	"github.com/example/session-planner/internal/reconcile"
	"github.com/example/session-planner/internal/sessiontime"
)

func (c *cli) reconcileCommand() *cobra.Command {
	var (
		day     string
		asJSON  bool
		icsPath string
	)
	cmd := &cobra.Command{
		Use:   "reconcile EVENT_ID SCHEDULE_ID",
		Short: "Print the reconciled sessions of a schedule",
		Long: `Fetch the sessions of a schedule from the backend, apply the stored import
mappings and print the result.

--day accepts an ISO date or an English phrase such as "today", "tomorrow"
or "next friday", evaluated in the event's timezone.

Examples:
  planner reconcile conf-2025 main
  planner reconcile conf-2025 main --day tomorrow
  planner reconcile conf-2025 main --ics main.ics`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			snapshot, err := rt.planner.Sessions(ctx, args[0], args[1])
			if err != nil {
				return fmt.Errorf("reconcile %s/%s: %w", args[0], args[1], err)
			}
			loc := rt.planner.ResolveTimezone(ctx, args[0])

			if day != "" {
				key, err := parseDay(day, time.Now().In(loc))
				if err != nil {
					return err
				}
				snapshot.Sessions = filterDay(snapshot.Sessions, key)
			}

			if icsPath != "" {
				if err := writeCalendar(icsPath, snapshot, loc); err != nil {
					return err
				}
			}
			if asJSON {
				enc := json.NewEncoder(c.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(snapshot)
			}
			return printSnapshot(c.stdout, snapshot, time.Now())
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "Only show sessions on this day")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the snapshot as JSON")
	cmd.Flags().StringVar(&icsPath, "ics", "", "Also write the sessions as an iCalendar file")
	return cmd
}

// parseDay resolves an ISO date or a natural language day relative to now.
func parseDay(input string, now time.Time) (string, error) {
	input = strings.TrimSpace(input)
	if t, err := time.ParseInLocation(sessiontime.DayLayout, input, now.Location()); err == nil {
		return t.Format(sessiontime.DayLayout), nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	result, err := w.Parse(input, now)
	if err != nil || result == nil {
		return "", fmt.Errorf("unrecognised day %q", input)
	}
	return result.Time.In(now.Location()).Format(sessiontime.DayLayout), nil
}

func filterDay(sessions []reconcile.Session, key string) []reconcile.Session {
	out := make([]reconcile.Session, 0, len(sessions))
	for _, s := range sessions {
		if s.DayKey() == key {
			out = append(out, s)
		}
	}
	return out
}

func writeCalendar(path string, snapshot application.Snapshot, loc *time.Location) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create calendar: %w", err)
	}
	_, err = calendar.Write(f, snapshot.Sessions, calendar.Options{
		Name:     snapshot.EventID + " / " + snapshot.ScheduleID,
		Location: loc,
		Domain:   snapshot.EventID + ".session-planner",
	})
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	return err
}

func printSnapshot(w io.Writer, snapshot application.Snapshot, now time.Time) error {
	report := snapshot.Report
	status := "fresh"
	if snapshot.Stale {
		status = "stale"
	}
	fmt.Fprintf(w, "%s / %s (%s), %s sessions, refreshed %s [%s]\n",
		snapshot.EventID, snapshot.ScheduleID, snapshot.Timezone,
		humanize.Comma(int64(len(snapshot.Sessions))),
		humanize.RelTime(snapshot.RefreshedAt, now, "ago", "from now"),
		status,
	)
	fmt.Fprintf(w, "linking: %s, %d matched, %d linked, %d duplicates dropped, %d parents expanded\n",
		report.Strategy, report.Matched, report.Linked, report.Duplicates, report.Expanded)
	if len(report.Demoted) > 0 {
		fmt.Fprintf(w, "demoted: %s\n", strings.Join(report.Demoted, ", "))
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tSTART\tEND\tTITLE\tLOCATION")
	for _, s := range snapshot.Sessions {
		title := s.Title
		if s.Type == reconcile.TypeChild {
			title = "  └ " + title
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.DayKey(), s.Start, s.End, title, s.Location)
	}
	return tw.Flush()
}
