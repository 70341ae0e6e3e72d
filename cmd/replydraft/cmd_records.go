package main

import (
	"fmt"
	"time"

	"replydraft/internal/store"

	"github.com/spf13/cobra"
)

func newRecordsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect and maintain the drafted-conversation records",
		Long: `A conversation is drafted at most once. These commands list the record
store, forget a conversation so it can be drafted again, or prune old records.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List drafted conversations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.Open(a.cfg.Store.Path, a.cfg.Store.CacheSize)
			if err != nil {
				return err
			}
			defer s.Close()

			recs, err := s.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintln(out, dimStyle.Render("no records"))
				return nil
			}
			for _, r := range recs {
				fmt.Fprintf(out, "%s  %s\n", r.Timestamp.Local().Format(time.DateTime), r.ConversationID)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "forget <conversation-id>",
		Short: "Delete a record so the conversation can be drafted again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.Open(a.cfg.Store.Path, a.cfg.Store.CacheSize)
			if err != nil {
				return err
			}
			defer s.Close()

			ok, err := s.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no record for %s", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "forgot %s\n", args[0])
			return nil
		},
	})

	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete records older than --older-than",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			s, err := store.Open(a.cfg.Store.Path, a.cfg.Store.CacheSize)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d record(s)\n", n)
			return nil
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Age cutoff")
	cmd.AddCommand(prune)

	return cmd
}
