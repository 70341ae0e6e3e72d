package main

import (
	"context"
	"fmt"
	"io"

	"replydraft/internal/config"
	"replydraft/internal/drafts"
	"replydraft/internal/store"

	"github.com/spf13/cobra"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show settings, drafting service health and record counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.status(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func (a *app) status(ctx context.Context, out io.Writer) error {
	cfg := a.cfg
	settings, err := config.LoadSettings(cfg.SettingsFile)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, titleStyle.Render("replydraft status"))
	fmt.Fprintln(out, field("settings", cfg.SettingsFile))
	if settings.Enabled {
		fmt.Fprintln(out, field("drafting", okStyle.Render("enabled")))
	} else {
		fmt.Fprintln(out, field("drafting", warnStyle.Render("disabled")))
	}

	if !settings.Configured() {
		fmt.Fprintln(out, field("service", warnStyle.Render("not configured")+dimStyle.Render(" (replydraft enable --api-url URL --api-secret SECRET)")))
	} else {
		client := drafts.NewClient(drafts.WithTimeouts(cfg.GetRequestTimeout(), cfg.GetStatusTimeout()))
		health, err := client.Status(ctx, settings)
		switch {
		case err != nil:
			fmt.Fprintln(out, field("service", errorStyle.Render("unreachable")+dimStyle.Render(" "+settings.APIURL+": "+err.Error())))
		case health.Status != "ok":
			fmt.Fprintln(out, field("service", warnStyle.Render(health.Status)+dimStyle.Render(" "+settings.APIURL)))
		default:
			fmt.Fprintln(out, field("service", okStyle.Render("ok")+dimStyle.Render(" "+settings.APIURL)))
		}
	}

	debugger := cfg.Browser.DebuggerURL
	if debugger == "" {
		debugger = dimStyle.Render("launch on watch")
	}
	fmt.Fprintln(out, field("chrome", debugger))

	records, err := store.Open(cfg.Store.Path, cfg.Store.CacheSize)
	if err != nil {
		fmt.Fprintln(out, field("records", errorStyle.Render(err.Error())))
		return nil
	}
	defer records.Close()
	all, err := records.List(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, field("records", fmt.Sprintf("%d drafted conversation(s) in %s", len(all), cfg.Store.Path)))
	return nil
}

func newEnableCmd(a *app, enable bool) *cobra.Command {
	var apiURL, apiSecret string

	use, short := "enable", "Turn drafting on (and optionally point it at a service)"
	if !enable {
		use, short = "disable", "Turn drafting off"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Env overrides must not end up in the file.
			settings, err := config.ReadSettings(a.cfg.SettingsFile)
			if err != nil {
				return err
			}
			settings.Enabled = enable
			if cmd.Flags().Changed("api-url") {
				settings.APIURL = apiURL
			}
			if cmd.Flags().Changed("api-secret") {
				settings.APISecret = apiSecret
			}
			if err := config.SaveSettings(a.cfg.SettingsFile, settings); err != nil {
				return err
			}
			state := okStyle.Render("enabled")
			if !enable {
				state = warnStyle.Render("disabled")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "drafting %s (%s)\n", state, a.cfg.SettingsFile)
			return nil
		},
	}
	if enable {
		cmd.Flags().StringVar(&apiURL, "api-url", "", "Drafting service base URL")
		cmd.Flags().StringVar(&apiSecret, "api-secret", "", "Bearer secret for the drafting service")
	}
	return cmd
}
