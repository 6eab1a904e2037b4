package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newResetCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear every user's download count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			st, err := openStores(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.ledger.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database has been reset successfully.")
			return nil
		},
	}
}

func newFormatsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "formats <url>",
		Short: "Print the quality options offered for a link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			resolver, _ := newResolver(cfg, log)

			res, err := resolver.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s %s)\n", res.Title, res.Kind, res.MediaID)
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FORMAT\tQUALITY\tVIDEO")
			for _, opt := range res.Options {
				fmt.Fprintf(w, "%s\t%s\t%t\n", opt.FormatID, opt.QualityLabel, opt.HasVideo)
			}
			return w.Flush()
		},
	}
}
