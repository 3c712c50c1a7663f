package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"invoicescraper/pkg/checkpoint"
	"invoicescraper/pkg/config"
	"invoicescraper/pkg/driver"
	"invoicescraper/pkg/export"
	"invoicescraper/pkg/logger"
	"invoicescraper/pkg/metrics"
	"invoicescraper/pkg/models"
	"invoicescraper/pkg/progress"
	"invoicescraper/pkg/storage"
	"invoicescraper/pkg/ui"
)

var (
	// Run command flags
	amountsFile  string
	listURL      string
	browserName  string
	controlURL   string
	pageMatch    string
	launch       bool
	outputDir    string
	minDelay     time.Duration
	maxDelay     time.Duration
	natsURL      string
	metricsAddr  string
	resumeRun    bool
	forceRestart bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [amounts...]",
	Short: "Extract shipments for a list of invoice amounts",
	Long: `Extract the shipments of every invoice matching one of the given amounts.

Amounts may carry currency symbols and thousands separators; they are
normalized and deduplicated before the run starts. The browser tab must
already be logged in to the portal.

Press Ctrl+C once to stop before the next amount or shipment, twice to abort
in-flight page calls.`,
	Example: `  # Two amounts against a Chrome started with --remote-debugging-port=9222
  invoicescraper run 452.67 '$1,431.43' --list-url https://portal.example.com/billing/invoices

  # Amounts from a file, one per line
  invoicescraper run --amounts-file amounts.txt

  # Resume an interrupted run
  invoicescraper run --amounts-file amounts.txt --resume`,
	RunE: runExtraction,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&amountsFile, "amounts-file", "f", "", "read amounts from a file (one per line, '#' comments)")
	runCmd.Flags().StringVar(&listURL, "list-url", "", "invoice list URL")
	runCmd.Flags().StringVar(&browserName, "browser", "", "browser backend (rod, playwright)")
	runCmd.Flags().StringVar(&controlURL, "control-url", "", "DevTools endpoint of the running browser")
	runCmd.Flags().StringVar(&pageMatch, "page-match", "", "substring of the tab URL to drive")
	runCmd.Flags().BoolVar(&launch, "launch", false, "launch a new browser instead of attaching")
	runCmd.Flags().StringVarP(&outputDir, "output", "o", "", "workbook output directory")
	runCmd.Flags().DurationVar(&minDelay, "min-delay", 0, "minimum pause between page actions")
	runCmd.Flags().DurationVar(&maxDelay, "max-delay", 0, "maximum pause between page actions")
	runCmd.Flags().StringVar(&natsURL, "nats-url", "", "publish progress events to this NATS server")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	runCmd.Flags().BoolVar(&resumeRun, "resume", false, "resume from the run journal")
	runCmd.Flags().BoolVar(&forceRestart, "force-restart", false, "discard any run journal and start over")
}

func runFlags(cmd *cobra.Command) map[string]interface{} {
	flags := globalFlags(cmd)
	if listURL != "" {
		flags["list-url"] = listURL
	}
	if browserName != "" {
		flags["browser"] = browserName
	}
	if controlURL != "" {
		flags["control-url"] = controlURL
	}
	if pageMatch != "" {
		flags["page-match"] = pageMatch
	}
	if launch {
		flags["launch"] = true
	}
	if outputDir != "" {
		flags["output"] = outputDir
	}
	if minDelay > 0 {
		flags["min-delay"] = minDelay
	}
	if maxDelay > 0 {
		flags["max-delay"] = maxDelay
	}
	if natsURL != "" {
		flags["nats-url"] = natsURL
	}
	if metricsAddr != "" {
		flags["metrics-addr"] = metricsAddr
	}
	return flags
}

func runExtraction(cmd *cobra.Command, args []string) error {
	if resumeRun && forceRestart {
		return errors.New("--resume and --force-restart are mutually exclusive")
	}

	raw := append([]string(nil), args...)
	if amountsFile != "" {
		fromFile, err := readAmountsFile(amountsFile)
		if err != nil {
			return err
		}
		raw = append(raw, fromFile...)
	}
	req := models.NewExtractionRequest(raw)
	for _, r := range req.Rejected() {
		ui.PrintWarning("Ignoring input without digits", r)
	}
	if req.Len() == 0 {
		return errors.New("no amounts given")
	}

	cfg, err := config.Load(configFile, runFlags(cmd))
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		return err
	}
	if cfg.Portal.ListURL == "" {
		return errors.New("invoice list URL not configured (use --list-url or portal.list_url)")
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()
	log.InfoWithFields("Invoice Scraper starting", map[string]interface{}{
		"amounts": req.Len(),
		"browser": cfg.Browser.Driver,
	})
	ui.PrintInfo("Amounts", fmt.Sprintf("%d", req.Len()))
	ui.PrintInfo("Invoice list", cfg.Portal.ListURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	token := driver.NewCancelToken()
	stop := watchSignals(token, cancel)
	defer stop()

	collector := metrics.NewCollector(cfg.Metrics.Namespace, nil, log)
	if cfg.Metrics.ListenAddr != "" {
		srv := collector.Serve(cfg.Metrics.ListenAddr)
		defer srv.Close()
	}

	sess, err := openSession(ctx, cfg, log, collector, collector)
	if err != nil {
		ui.PrintError("Browser connection failed", err.Error())
		return err
	}
	defer sess.Close()

	store, err := storage.NewManager(cfg.Export.OutputDir)
	if err != nil {
		return err
	}

	d := driver.New(sess.client, sess.server, export.NewWorkbook(cfg.Export, log), store, cfg, log)
	d.SetMetrics(collector)
	d.SetReporter(buildReporter(cfg, req.Len(), log))
	if err := configureJournal(d, cfg, req, log); err != nil {
		return err
	}

	out, err := d.Run(ctx, req, token)
	switch {
	case errors.Is(err, driver.ErrCancelled):
		ui.PrintWarning("Run cancelled, no workbook written")
		if cfg.Checkpoint.Enabled {
			ui.PrintInfo("Resume with", "invoicescraper run --resume")
		}
		return nil
	case err != nil:
		ui.PrintError("EXTRACTION FAILED", err.Error())
		return err
	}

	ui.PrintSuccess("[EXTRACTION COMPLETED]")
	ui.PrintInfo("Workbook", out.Path)
	return nil
}

func buildReporter(cfg *config.Config, total int, log logger.Logger) progress.Reporter {
	var notifier *ui.Notifier
	if cfg.Notifications.Enabled {
		notifier = ui.NewNotifier()
	}
	multi := progress.NewMulti(log, progress.NewTerminalReporter(os.Stdout, total, verbose, notifier, cfg.Notifications))

	if cfg.Progress.NATSURL != "" {
		pub, err := progress.NewNATSReporter(cfg.Progress.NATSURL, cfg.Progress.Subject, log)
		if err != nil {
			log.WithError(err).Warn("Progress events will not be published")
		} else {
			multi.Add(pub)
		}
	}
	return multi
}

// configureJournal wires the run journal according to --resume and
// --force-restart
func configureJournal(d *driver.Driver, cfg *config.Config, req *models.ExtractionRequest, log logger.Logger) error {
	if !cfg.Checkpoint.Enabled {
		return nil
	}
	mgr, err := checkpoint.NewManager(req.Key(), cfg.Checkpoint.Directory)
	if err != nil {
		log.WithError(err).Warn("Run journal disabled")
		return nil
	}

	if forceRestart && mgr.Exists() {
		if err := mgr.Delete(); err != nil {
			return fmt.Errorf("failed to discard run journal: %w", err)
		}
		ui.PrintInfo("Force restart", "Ignoring existing journal")
	} else if !resumeRun && mgr.Exists() {
		if info, err := mgr.GetCheckpointInfo(); err == nil && info != nil {
			ui.PrintWarning("A journal exists for these amounts", fmt.Sprintf("%v records, use --resume to continue or --force-restart to discard", info["records"]))
		}
		return errors.New("unfinished run found")
	}

	d.SetJournal(func(key, runID string, amounts []string) (driver.Journal, error) {
		return mgr.Begin(key, runID, amounts, resumeRun)
	})
	return nil
}

// watchSignals cancels token on the first interrupt and the context on the
// second
func watchSignals(token *driver.CancelToken, cancel context.CancelFunc) func() {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		count := 0
		for {
			select {
			case <-sigs:
				count++
				if count == 1 {
					ui.PrintWarning("\nStopping after the current step (Ctrl+C again to abort)")
					token.Cancel()
					continue
				}
				ui.PrintWarning("\nAborting")
				cancel()
				return
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

func readAmountsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open amounts file: %w", err)
	}
	defer f.Close()
	return parseAmounts(f)
}

// parseAmounts reads whitespace or newline separated amounts, skipping '#'
// comments. Commas inside an amount are thousands separators, so they are not
// treated as delimiters.
func parseAmounts(r io.Reader) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		out = append(out, strings.Fields(line)...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read amounts: %w", err)
	}
	return out, nil
}
