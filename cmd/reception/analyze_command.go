package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"reception-agent-go/internal/pipeline"
	"reception-agent-go/internal/processor"
	"reception-agent-go/internal/store"
)

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var save bool
	var format string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "analyze <audio-file>",
		Short: "Transcribe and extract a recorded call, optionally saving it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			audio, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read audio: %w", err)
			}

			return ctx.withService(cmd.Context(), func(svc *processor.Service, _ *store.Store) error {
				view, err := svc.Start(cmd.Context(), pipeline.Upload{
					Audio:    audio,
					Format:   format,
					Filename: filepath.Base(path),
				})
				if err != nil && !processor.IsSessionError(err) {
					return err
				}
				if err == nil && save {
					view, err = svc.Confirm(cmd.Context(), view.ID)
					if err != nil {
						return fmt.Errorf("save call: %w", err)
					}
				}

				if asJSON {
					if werr := writeJSON(cmd, view); werr != nil {
						return werr
					}
					return err
				}
				printView(cmd, view)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "Save the extracted record without editing")
	cmd.Flags().StringVar(&format, "format", "", "Audio format (default: from file extension)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the session as JSON")
	return cmd
}

func printView(cmd *cobra.Command, v processor.View) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "State: %s\n", v.State)
	if v.FailedStage != "" {
		fmt.Fprintf(out, "Failed at %s: %s\n", v.FailedStage, v.Error)
		return
	}

	rec := v.Draft
	if v.Saved != nil {
		rec = v.Saved
		fmt.Fprintf(out, "Saved as call %d\n", v.Saved.ID)
	}
	if rec != nil {
		rows := [][]string{
			{"Caller", rec.CallerName},
			{"Phone", rec.PhoneNumber},
			{"Department", rec.Department},
			{"Priority", string(rec.Priority)},
			{"Summary", rec.Summary},
			{"Suggested response", rec.AIResponse},
		}
		fmt.Fprint(out, renderTable([]string{"Field", "Value"}, rows, nil))
	}
	if d := v.Duplicate; d != nil {
		fmt.Fprintf(out, "Possible duplicate of call %s (%s, %s): %s\n",
			strconv.FormatInt(d.Record.ID, 10), d.Record.CallerName, d.Record.PhoneNumber, d.Reason)
	}
}
