package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (c *cli) schedulesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schedules EVENT_ID",
		Short: "List the schedules of an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			schedules, err := rt.planner.Schedules(ctx, args[0])
			if err != nil {
				return describeError(err)
			}
			if len(schedules) == 0 {
				fmt.Fprintln(c.stdout, "No schedules found.")
				return nil
			}

			tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME")
			for _, schedule := range schedules {
				fmt.Fprintf(tw, "%s\t%s\n", schedule.ID, schedule.Name)
			}
			return tw.Flush()
		},
	}
}
