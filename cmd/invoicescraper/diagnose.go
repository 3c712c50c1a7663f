package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"invoicescraper/pkg/config"
	"invoicescraper/pkg/logger"
)

var diagnoseNavigate bool

// diagnoseCmd represents the diagnose command
var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Print what the page agent sees on the current tab",
	Long: `Attach to the browser, install the page agent and print its diagnostics
as JSON: the page URL, detected view markers, visible amounts and
identifier-like tokens. Useful when amounts come back NOT FOUND.`,
	RunE: runDiagnose,
}

func init() {
	rootCmd.AddCommand(diagnoseCmd)
	diagnoseCmd.Flags().StringVar(&listURL, "list-url", "", "invoice list URL")
	diagnoseCmd.Flags().StringVar(&browserName, "browser", "", "browser backend (rod, playwright)")
	diagnoseCmd.Flags().StringVar(&controlURL, "control-url", "", "DevTools endpoint of the running browser")
	diagnoseCmd.Flags().StringVar(&pageMatch, "page-match", "", "substring of the tab URL to drive")
	diagnoseCmd.Flags().BoolVar(&diagnoseNavigate, "navigate", false, "load the invoice list first")
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, runFlags(cmd))
	if err != nil {
		return err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return err
	}
	log := logger.GetLogger()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timing.NavigateTimeout+cfg.Timing.DiagnoseTimeout)
	defer cancel()

	sess, err := openSession(ctx, cfg, log, nil, nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	if diagnoseNavigate {
		if cfg.Portal.ListURL == "" {
			return fmt.Errorf("--navigate needs an invoice list URL")
		}
		if err := sess.server.Navigate(ctx, cfg.Portal.ListURL); err != nil {
			return err
		}
	}
	if err := sess.server.Install(ctx); err != nil {
		return err
	}

	diag, err := sess.client.Diagnose(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(diag, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
