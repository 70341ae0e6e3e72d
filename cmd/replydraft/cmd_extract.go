package main

import (
	"encoding/json"
	"fmt"
	"os"

	"replydraft/internal/drafts"
	"replydraft/internal/extract"
	"replydraft/internal/selectors"

	"github.com/spf13/cobra"
)

func newExtractCmd(a *app) *cobra.Command {
	var location string
	var asRequest bool

	cmd := &cobra.Command{
		Use:   "extract <page.html>",
		Short: "Run the extractor over a saved page and print the snapshot",
		Long: `Reads a saved copy of the messaging page and prints what a live cycle would
see: the unanswered inbound message, its sender and the conversation context.
Useful for checking selector overrides against a page LinkedIn has redesigned.

Prints nothing but a notice when the thread has no unanswered message.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := selectors.New(a.cfg.Selectors.Rules, a.cfg.Selectors.ThreadPath)
			if err != nil {
				return fmt.Errorf("selector overrides: %w", err)
			}
			html, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			snap, err := extract.New(reg).ExtractHTML(string(html), location)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if snap == nil {
				fmt.Fprintln(out, dimStyle.Render("no unanswered inbound message"))
				return nil
			}

			var v any = snap
			if asRequest {
				v = drafts.RequestFromSnapshot(snap)
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		},
	}
	cmd.Flags().StringVar(&location, "url", "", "Page URL the snapshot was taken at (drives the conversation id)")
	cmd.Flags().BoolVar(&asRequest, "request", false, "Print the draft request body instead of the snapshot")
	return cmd
}
