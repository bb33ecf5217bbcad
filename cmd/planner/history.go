package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func (c *cli) mappingsCommand() *cobra.Command {
	var clearSet bool
	cmd := &cobra.Command{
		Use:   "mappings EVENT_ID [SCHEDULE_ID]",
		Short: "List or clear stored import mappings",
		Long: `List the mapping sets stored for an event, or with --clear delete the
mappings of one schedule so it falls back to heuristic linking.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if clearSet && len(args) != 2 {
				return fmt.Errorf("--clear needs EVENT_ID and SCHEDULE_ID")
			}
			rt, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			if clearSet {
				if err := rt.planner.ClearMappings(ctx, args[0], args[1]); err != nil {
					return describeError(err)
				}
				fmt.Fprintf(c.stdout, "cleared mappings of %s/%s\n", args[0], args[1])
				return nil
			}

			sets, err := rt.planner.MappingSets(ctx, args[0])
			if err != nil {
				return describeError(err)
			}
			if len(args) == 2 {
				filtered := sets[:0]
				for _, set := range sets {
					if set.ScheduleID == args[1] {
						filtered = append(filtered, set)
					}
				}
				sets = filtered
			}
			if len(sets) == 0 {
				fmt.Fprintln(c.stdout, "No mappings stored.")
				return nil
			}

			now := time.Now()
			tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SCHEDULE\tMAPPINGS\tSOURCE\tIMPORTED")
			for _, set := range sets {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", set.ScheduleID, len(set.Mappings), set.SourceName,
					humanize.RelTime(set.ImportedAt, now, "ago", "from now"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&clearSet, "clear", false, "Delete the mappings of the schedule")
	return cmd
}

func (c *cli) importsCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "imports EVENT_ID [SCHEDULE_ID]",
		Short: "Show the import history of an event",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			scheduleID := ""
			if len(args) == 2 {
				scheduleID = args[1]
			}
			rt, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			records, err := rt.planner.Imports(ctx, args[0], scheduleID, limit)
			if err != nil {
				return describeError(err)
			}
			if len(records) == 0 {
				fmt.Fprintln(c.stdout, "No imports recorded.")
				return nil
			}

			now := time.Now()
			tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSCHEDULE\tSOURCE\tROWS\tMAPPINGS\tUPLOADED\tWHEN\tERROR")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%t\t%s\t%s\n",
					r.ID, r.ScheduleID, r.SourceName, r.Rows, r.Mappings, r.Uploaded,
					humanize.RelTime(r.ImportedAt, now, "ago", "from now"), r.Error)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of imports to display")
	return cmd
}
