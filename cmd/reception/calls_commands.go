package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"reception-agent-go/internal/processor"
	"reception-agent-go/internal/store"
	"reception-agent-go/internal/types"
)

func newCallsCommand(ctx *commandContext) *cobra.Command {
	callsCmd := &cobra.Command{
		Use:   "calls",
		Short: "Browse and manage stored calls",
	}

	callsCmd.AddCommand(newCallsListCommand(ctx))
	callsCmd.AddCommand(newCallsShowCommand(ctx))
	callsCmd.AddCommand(newCallsDeleteCommand(ctx))
	callsCmd.AddCommand(newCallsExportCommand(ctx))
	callsCmd.AddCommand(newCallsStatsCommand(ctx))

	return callsCmd
}

func newCallsListCommand(ctx *commandContext) *cobra.Command {
	var query string
	var limit, offset int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored calls, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd.Context(), func(svc *processor.Service, _ *store.Store) error {
				calls, err := svc.ListCalls(cmd.Context(), store.Filter{Query: query, Limit: limit, Offset: offset})
				if err != nil {
					return err
				}
				if asJSON {
					if calls == nil {
						calls = []types.CallRecord{}
					}
					return writeJSON(cmd, calls)
				}
				if len(calls) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No calls found")
					return nil
				}
				rows := make([][]string, 0, len(calls))
				for _, c := range calls {
					rows = append(rows, []string{
						strconv.FormatInt(c.ID, 10),
						c.CreatedAt.Local().Format(time.DateTime),
						orDash(c.CallerName),
						orDash(c.PhoneNumber),
						c.Department,
						string(c.Priority),
						c.Summary,
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Created", "Caller", "Phone", "Department", "Priority", "Summary"},
					rows,
					[]columnAlignment{alignRight},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "Search caller name, department, summary, and transcript")
	cmd.Flags().IntVar(&limit, "limit", store.DefaultListLimit, "Maximum number of calls")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of calls to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newCallsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one stored call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withService(cmd.Context(), func(svc *processor.Service, _ *store.Store) error {
				rec, err := svc.GetCall(cmd.Context(), id)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, rec)
				}
				rows := [][]string{
					{"ID", strconv.FormatInt(rec.ID, 10)},
					{"Created", rec.CreatedAt.Local().Format(time.DateTime)},
					{"Caller", orDash(rec.CallerName)},
					{"Phone", orDash(rec.PhoneNumber)},
					{"Department", rec.Department},
					{"Priority", string(rec.Priority)},
					{"Summary", rec.Summary},
					{"Suggested response", orDash(rec.AIResponse)},
					{"Transcript", rec.Transcript},
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newCallsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Permanently delete a stored call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withService(cmd.Context(), func(svc *processor.Service, _ *store.Store) error {
				if err := svc.DeleteCall(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted call %d\n", id)
				return nil
			})
		},
	}
}

func newCallsExportCommand(ctx *commandContext) *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "export <file.xlsx>",
		Short: "Export stored calls to an Excel workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd.Context(), func(svc *processor.Service, _ *store.Store) error {
				f, err := os.Create(args[0])
				if err != nil {
					return fmt.Errorf("create export: %w", err)
				}
				n, err := svc.Export(cmd.Context(), f, query)
				if cerr := f.Close(); err == nil {
					err = cerr
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d calls to %s\n", n, args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Only export calls matching this search")
	return cmd
}

func newCallsStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize stored calls by priority and department",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd.Context(), func(svc *processor.Service, _ *store.Store) error {
				rep, err := svc.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, rep)
				}
				out := cmd.OutOrStdout()
				rows := make([][]string, 0, len(types.Priorities))
				for _, p := range types.Priorities {
					rows = append(rows, []string{string(p), strconv.Itoa(rep.Stats.ByPriority[p])})
				}
				fmt.Fprint(out, renderTable([]string{"Priority", "Calls"}, rows, []columnAlignment{alignLeft, alignRight}))

				rows = rows[:0]
				for _, d := range rep.Stats.TopDepartments {
					rows = append(rows, []string{d.Department, strconv.Itoa(d.Count)})
				}
				if len(rows) > 0 {
					fmt.Fprint(out, renderTable([]string{"Department", "Calls"}, rows, []columnAlignment{alignLeft, alignRight}))
				}
				fmt.Fprintf(out, "Total: %d\n%s\n-> %s\n", rep.Stats.Total, rep.Action.Insight, rep.Action.Action)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid call id %q", s)
	}
	return id, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
