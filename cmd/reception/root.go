package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var passwordFlag string

	ctx := newCommandContext(&configFlag, &passwordFlag)

	rootCmd := &cobra.Command{
		Use:           "reception",
		Short:         "Call intake: transcribe, extract, review and store phone calls",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}
			if skipAuth(cmd) {
				return nil
			}
			return ctx.authorize()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (TOML)")
	rootCmd.PersistentFlags().StringVarP(&passwordFlag, "password", "p", "", "Admin password")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newAnalyzeCommand(ctx))
	rootCmd.AddCommand(newCallsCommand(ctx))

	return rootCmd
}
