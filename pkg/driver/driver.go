package driver

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"invoicescraper/pkg/config"
	errs "invoicescraper/pkg/errors"
	"invoicescraper/pkg/export"
	"invoicescraper/pkg/logger"
	"invoicescraper/pkg/models"
	"invoicescraper/pkg/progress"
	"invoicescraper/pkg/ratelimit"
)

// Outcome describes a finished run. Result is nil unless the run completed.
type Outcome struct {
	RunID    string
	State    State
	Result   *models.ExtractionResult
	Summary  models.Summary
	Artifact *export.Artifact
	Path     string
	Duration time.Duration
}

// Driver sequences the extraction workflow over a single page
type Driver struct {
	agent    AgentClient
	nav      Navigator
	sink     export.Sink
	store    ArtifactStore
	pacer    ratelimit.Pacer
	reporter progress.Reporter
	metrics  Recorder
	journal  JournalOpener
	config   *config.Config
	logger   logger.Logger

	mu    sync.RWMutex
	state State
	runID string
}

// New creates a driver. Pacing defaults to the configured jitter.
func New(agent AgentClient, nav Navigator, sink export.Sink, store ArtifactStore, cfg *config.Config, log logger.Logger) *Driver {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Driver{
		agent:    agent,
		nav:      nav,
		sink:     sink,
		store:    store,
		pacer:    ratelimit.NewJitter(cfg.Timing.MinDelay, cfg.Timing.MaxDelay, cfg.Timing.NavigationsPerMinute),
		reporter: progress.Nop{},
		config:   cfg,
		logger:   log.WithField("component", "driver"),
		state:    StateIdle,
	}
}

// SetPacer replaces the pacing policy
func (d *Driver) SetPacer(p ratelimit.Pacer) {
	d.pacer = p
}

// SetReporter sets the progress reporter
func (d *Driver) SetReporter(r progress.Reporter) {
	if r == nil {
		r = progress.Nop{}
	}
	d.reporter = r
}

// SetMetrics sets the metrics recorder
func (d *Driver) SetMetrics(m Recorder) {
	d.metrics = m
}

// SetJournal enables run journaling
func (d *Driver) SetJournal(open JournalOpener) {
	d.journal = open
}

// State returns the current workflow state
func (d *Driver) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

func (d *Driver) setState(s State) {
	d.mu.Lock()
	from := d.state
	d.state = s
	d.mu.Unlock()

	if from == s {
		return
	}
	if d.metrics != nil {
		d.metrics.RecordStateTransition(string(from), string(s))
	}
	d.logger.DebugWithFields("State transition", map[string]interface{}{
		"from": string(from),
		"to":   string(s),
	})
}

func (d *Driver) report(evt progress.Event) {
	d.mu.RLock()
	evt.RunID = d.runID
	d.mu.RUnlock()
	d.reporter.Report(evt)
}

// Run processes every amount of req in order, then exports and saves the
// workbook. It returns ErrCancelled when token was set, and a Fatal error
// when export, saving or the orchestration loop itself failed. Per-amount
// failures never surface here; they become sentinel records.
func (d *Driver) Run(ctx context.Context, req *models.ExtractionRequest, token *CancelToken) (out *Outcome, err error) {
	if req == nil || req.Len() == 0 {
		return nil, errs.New(errs.ErrorTypeFatal, "run", "no amounts to process")
	}

	runID := uuid.NewString()
	start := time.Now()
	d.mu.Lock()
	d.runID = runID
	d.state = StateIdle
	d.mu.Unlock()

	log := d.logger.WithField("run_id", runID)
	result := models.NewExtractionResult()
	out = &Outcome{RunID: runID}

	defer func() {
		if r := recover(); r != nil {
			log.ErrorWithFields("Orchestration panic", map[string]interface{}{
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			})
			err = errs.Fatal("run", fmt.Errorf("panic: %v", r))
		}
		result.Freeze()
		switch {
		case err == nil:
			out.State = StateCompleted
			out.Result = result
		case err == ErrCancelled:
			out.State = StateCancelled
		default:
			out.State = StateFatal
		}
		out.Summary = result.Summarize()
		out.Duration = time.Since(start)
		d.setState(out.State)
		d.finish(log, out, err)
	}()

	amounts := req.Amounts()
	log.InfoWithFields("Run started", map[string]interface{}{
		"amounts":  len(amounts),
		"rejected": len(req.Rejected()),
	})
	d.report(progress.Event{Type: progress.EventStarted, Total: len(amounts)})

	journal, resumed := d.openJournal(log, req.Key(), runID, amounts)

	for i, amt := range amounts {
		if token.Cancelled() || ctx.Err() != nil {
			log.WarnWithFields("Cancellation requested, stopping before amount", map[string]interface{}{
				"amount": amt,
				"done":   i,
			})
			return out, ErrCancelled
		}

		rec, ok := resumed[amt]
		if ok {
			log.InfoWithFields("Amount restored from journal", map[string]interface{}{
				"amount":         amt,
				"invoice_number": rec.InvoiceNumber,
			})
		} else {
			d.report(progress.Event{Type: progress.EventAmountStarted, Amount: amt, Done: i, Total: len(amounts)})
			var cancelled bool
			rec, cancelled = d.processAmount(ctx, log.WithField("amount", amt), amt, token)
			if cancelled {
				return out, ErrCancelled
			}
		}

		d.setState(StateFinalizeAmount)
		if err := result.Put(rec); err != nil {
			return out, errs.Fatal("finalize", err)
		}
		if journal != nil && !ok {
			if err := journal.Record(rec); err != nil {
				log.WithError(err).Warn("Failed to journal record")
			}
		}
		d.recordAmount(rec)
		d.report(progress.Event{
			Type:          progress.EventAmountDone,
			Amount:        amt,
			InvoiceNumber: rec.InvoiceNumber,
			Shipments:     len(rec.Shipments),
			Done:          i + 1,
			Total:         len(amounts),
		})
		logger.LogRunProgress(log, i+1, len(amounts))
	}

	d.setState(StateExport)
	art, err := d.sink.Export(ctx, result, runID)
	if err != nil {
		return out, asFatal("export", err)
	}
	out.Artifact = art

	path, err := d.store.SaveArtifact(art.Name, art.Data)
	if err != nil {
		return out, errs.Fatal("download", err)
	}
	out.Path = path

	if journal != nil {
		if err := journal.Finish(); err != nil {
			log.WithError(err).Warn("Failed to remove journal")
		}
	}
	return out, nil
}

func (d *Driver) openJournal(log logger.Logger, key, runID string, amounts []string) (Journal, map[string]models.InvoiceRecord) {
	resumed := map[string]models.InvoiceRecord{}
	if d.journal == nil {
		return nil, resumed
	}
	j, err := d.journal(key, runID, amounts)
	if err != nil {
		log.WithError(err).Warn("Run journal unavailable, continuing without resume support")
		return nil, resumed
	}
	for _, rec := range j.Resumed() {
		resumed[rec.Amount] = rec
	}
	if len(resumed) > 0 {
		log.InfoWithFields("Resuming run", map[string]interface{}{"restored": len(resumed)})
	}
	return j, resumed
}

func (d *Driver) finish(log logger.Logger, out *Outcome, err error) {
	if d.metrics != nil {
		d.metrics.RecordRun(string(out.State))
	}
	fields := map[string]interface{}{
		"state":       string(out.State),
		"amounts":     out.Summary.Amounts,
		"found":       out.Summary.Found,
		"not_found":   out.Summary.NotFound,
		"errors":      out.Summary.Errors,
		"shipments":   out.Summary.Shipments,
		"duration_ms": out.Duration.Milliseconds(),
	}
	summary := out.Summary

	switch out.State {
	case StateCompleted:
		fields["path"] = out.Path
		log.InfoWithFields("Run completed", fields)
		d.report(progress.Event{Type: progress.EventDone, Path: out.Path, Summary: &summary, Done: summary.Amounts, Total: summary.Amounts})
	case StateCancelled:
		log.WarnWithFields("Run cancelled", fields)
		d.report(progress.Event{Type: progress.EventError, Message: "run cancelled", Summary: &summary})
	default:
		log.WithError(err).ErrorWithFields("Run failed", fields)
		d.report(progress.Event{Type: progress.EventError, Message: err.Error(), Summary: &summary})
	}
}

func asFatal(op string, err error) error {
	if errs.IsFatal(err) {
		return err
	}
	return errs.Fatal(op, err)
}
