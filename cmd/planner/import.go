package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/example/session-planner/internal/application"
)

func (c *cli) importCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import EVENT_ID SCHEDULE_ID FILE",
		Short: "Import a parent/child sheet for a schedule",
		Long: `Store the parent/child mappings of an .xlsx, .csv or .tsv sheet, forward
the sheet to the backend and print the reloaded schedule summary.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			content, err := os.ReadFile(args[2])
			if err != nil {
				return fmt.Errorf("read sheet: %w", err)
			}

			rt, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := rt.planner.Import(ctx, application.ImportParams{
				EventID:    args[0],
				ScheduleID: args[1],
				Filename:   filepath.Base(args[2]),
				Content:    content,
			})
			if err != nil {
				return describeError(err)
			}

			fmt.Fprintf(c.stdout, "import %s: %s (%s), %d rows, %d skipped\n",
				result.ImportID, filepath.Base(args[2]), humanize.Bytes(uint64(len(content))), result.Rows, result.Skipped)
			if result.MappingsSaved {
				fmt.Fprintf(c.stdout, "stored %d mappings\n", result.Mappings)
			} else {
				fmt.Fprintln(c.stdout, "sheet lacks mapping columns, stored mappings kept")
			}
			if result.Snapshot != nil {
				fmt.Fprintf(c.stdout, "schedule now has %d sessions (%s linking)\n",
					len(result.Snapshot.Sessions), result.Snapshot.Report.Strategy)
			}
			return nil
		},
	}
}

// describeError spells out validation failures field by field.
func describeError(err error) error {
	var vErr *application.ValidationError
	if !errors.As(err, &vErr) {
		return err
	}
	fields := make([]string, 0, len(vErr.FieldErrors))
	for field := range vErr.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString(vErr.Error())
	for _, field := range fields {
		fmt.Fprintf(&b, "\n  %s: %s", field, vErr.FieldErrors[field])
	}
	return errors.New(b.String())
}
