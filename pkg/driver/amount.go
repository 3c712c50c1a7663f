package driver

import (
	"context"
	"fmt"
	"time"

	"invoicescraper/pkg/config"
	errs "invoicescraper/pkg/errors"
	"invoicescraper/pkg/logger"
	"invoicescraper/pkg/metrics"
	"invoicescraper/pkg/models"
	"invoicescraper/pkg/progress"
	"invoicescraper/pkg/protocol"
	"invoicescraper/pkg/retry"
)

// processAmount runs one amount through the per-amount states. The second
// return is true when cancellation was observed before a shipment.
func (d *Driver) processAmount(ctx context.Context, log logger.Logger, amt string, token *CancelToken) (models.InvoiceRecord, bool) {
	portal := d.config.Portal

	d.setState(StateNavigateList)
	d.status(amt, "loading invoice list")
	if err := d.navigate(ctx, portal.ListURL); err != nil {
		logger.LogAmountOutcome(log, amt, models.Error, 0, err)
		return errorRecord(amt), false
	}
	if err := d.ensureAgent(ctx); err != nil {
		logger.LogAmountOutcome(log, amt, models.Error, 0, err)
		return errorRecord(amt), false
	}
	d.pause(ctx)

	d.setState(StateLocateAndOpenInvoice)
	d.status(amt, "locating invoice")
	inv, err := withRecovery(ctx, log, d.reopenList, func() (*protocol.InvoiceResult, error) {
		return d.agent.LocateAndOpenInvoice(ctx, amt)
	})
	if err != nil {
		logger.LogAmountOutcome(log, amt, models.Error, 0, err)
		return errorRecord(amt), false
	}
	if !inv.Found {
		logNotFound(log, amt, inv.Diagnostics)
		logger.LogAmountOutcome(log, amt, models.NotFound, 0, nil)
		return models.InvoiceRecord{Amount: amt, InvoiceNumber: models.NotFound, Shipments: []models.ShipmentRecord{}}, false
	}
	if inv.Diagnostics != nil && inv.Diagnostics.ViewReadyTimeout {
		log.WarnWithFields("Invoice view not confirmed ready, proceeding", map[string]interface{}{
			"url": inv.Diagnostics.URL,
		})
	}
	d.pause(ctx)

	rec := models.InvoiceRecord{Amount: amt, InvoiceNumber: inv.InvoiceNumber, Shipments: []models.ShipmentRecord{}}
	log = log.WithField("invoice_number", inv.InvoiceNumber)
	log.InfoWithFields("Invoice opened", map[string]interface{}{
		"strategy":     inv.Strategy,
		"tracking_ids": len(inv.TrackingIDs),
	})
	if len(inv.TrackingIDs) == 0 {
		log.Info("Invoice has no shipments")
	}

	// awayFromInvoice is set once a shipment click may have left the invoice view
	awayFromInvoice := false
	for i, id := range inv.TrackingIDs {
		if token.Cancelled() || ctx.Err() != nil {
			log.WarnWithFields("Cancellation requested, stopping before shipment", map[string]interface{}{
				"tracking_id": id,
				"index":       i,
			})
			return rec, true
		}

		d.status(amt, fmt.Sprintf("shipment %d/%d", i+1, len(inv.TrackingIDs)))
		shipLog := log.WithField("tracking_id", id)
		if awayFromInvoice {
			d.setState(StateReturnToInvoice)
			d.returnToInvoice(ctx, shipLog, inv.DetailURL)
		}

		fields, left, reason := d.openShipment(ctx, shipLog, id)
		awayFromInvoice = left
		d.pause(ctx)
		if reason != "" {
			logger.LogSkip(shipLog, "shipment", reason, map[string]interface{}{"index": i})
			d.recordShipment(metrics.OutcomeSkipped)
			continue
		}
		rec.Shipments = append(rec.Shipments, models.ShipmentRecord(fields))
		d.recordShipment(metrics.OutcomeScraped)
		shipLog.DebugWithFields("Shipment scraped", map[string]interface{}{"fields": len(fields)})
	}

	logger.LogAmountOutcome(log, amt, rec.InvoiceNumber, len(rec.Shipments), nil)
	return rec, false
}

// openShipment clicks, waits for and scrapes one shipment. left reports
// whether the page may have moved off the invoice view; a failed click
// leaves that unknown and counts as moved. A non-empty reason means the
// shipment was skipped.
func (d *Driver) openShipment(ctx context.Context, log logger.Logger, trackingID string) (fields map[string]string, left bool, reason string) {
	portal := d.config.Portal
	timing := d.config.Timing

	d.setState(StateOpenShipment)
	clicked, err := withRecovery(ctx, log, d.install, func() (bool, error) {
		return d.agent.ClickTrackingEntry(ctx, trackingID)
	})
	if err != nil {
		return nil, true, "click failed: " + err.Error()
	}
	if !clicked {
		return nil, false, "tracking entry not found"
	}

	ready, err := d.agent.WaitForViewReady(ctx, portal.ShipmentFragment, portal.ShipmentMarker, timing.ViewReadyTimeout)
	if err != nil {
		return nil, true, "shipment view wait failed: " + err.Error()
	}
	if !ready {
		return nil, true, "shipment view not ready"
	}

	d.setState(StateScrapeShipment)
	fields, err = withRecovery(ctx, log, d.install, func() (map[string]string, error) {
		return d.agent.ScrapeShipmentFields(ctx)
	})
	if err != nil {
		return nil, true, "scrape failed: " + err.Error()
	}
	if len(fields) == 0 {
		return nil, true, "no fields scraped"
	}
	return fields, true, ""
}

// returnToInvoice goes back to the invoice view: history back with a short
// landing wait, then a direct load of the detail URL when that fails
func (d *Driver) returnToInvoice(ctx context.Context, log logger.Logger, detailURL string) {
	portal := d.config.Portal
	timing := d.config.Timing

	if err := d.agent.NavigateBack(ctx); err != nil {
		log.WithError(err).Warn("Back navigation failed")
	} else {
		fragment, marker := landingSignal(portal)
		landed, err := d.agent.WaitForViewReady(ctx, fragment, marker, timing.LandingTimeout)
		if err == nil && landed {
			return
		}
	}

	if detailURL == "" {
		log.Warn("Invoice view not restored and no detail URL to fall back to")
		return
	}
	log.InfoWithFields("Falling back to direct invoice navigation", map[string]interface{}{"url": detailURL})
	if err := d.navigate(ctx, detailURL); err != nil {
		log.WithError(err).Warn("Direct invoice navigation failed")
		return
	}
	if err := d.ensureAgent(ctx); err != nil {
		log.WithError(err).Warn("Agent unavailable after direct navigation")
		return
	}
	ready, err := d.agent.WaitForViewReady(ctx, portal.InvoiceFragment, portal.InvoiceMarker, timing.ViewReadyTimeout)
	if err != nil || !ready {
		log.Warn("Invoice view not ready after direct navigation")
	}
}

// navigate performs a full page load bounded by the navigation timeout
func (d *Driver) navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, d.config.Timing.NavigateTimeout)
	defer cancel()
	if err := d.nav.Navigate(navCtx, url); err != nil {
		if navCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return errs.Timeout("navigate", err)
		}
		return err
	}
	return nil
}

// ensureAgent pings the agent and installs it when absent
func (d *Driver) ensureAgent(ctx context.Context) error {
	alive, err := d.agent.Ping(ctx)
	if err == nil && alive {
		return nil
	}
	return d.install(ctx)
}

func (d *Driver) install(ctx context.Context) error {
	instCtx, cancel := context.WithTimeout(ctx, d.config.Timing.NavigateTimeout)
	defer cancel()
	if err := d.nav.Install(instCtx); err != nil {
		return errs.Transport("install", err)
	}
	return nil
}

// landingSignal picks what proves a back navigation reached the invoice
// view. The list URL often shares the invoice fragment, so the marker alone
// decides whenever one is configured.
func landingSignal(portal config.PortalConfig) (fragment, marker string) {
	if portal.InvoiceMarker != "" {
		return "", portal.InvoiceMarker
	}
	return portal.InvoiceFragment, ""
}

// reopenList reloads the invoice list and reinstalls the agent there, so a
// rerun of the locate step starts from the list rather than wherever the
// failed attempt left the page
func (d *Driver) reopenList(ctx context.Context) error {
	if err := d.navigate(ctx, d.config.Portal.ListURL); err != nil {
		return err
	}
	return d.install(ctx)
}

// withRecovery runs an agent call once more after restore when the
// first attempt failed at the transport level
func withRecovery[T any](ctx context.Context, log logger.Logger, restore func(context.Context) error, call func() (T, error)) (T, error) {
	cfg := retry.DefaultConfig()
	cfg.Context = ctx
	cfg.Logger = log
	cfg.OnRetry = func(attempt int, err error, _ time.Duration) {
		log.WithError(err).Warn("Agent channel failed, recovering agent")
		if rerr := restore(ctx); rerr != nil {
			log.WithError(rerr).Warn("Agent recovery failed")
		}
	}
	return retry.DoWithResult(call, cfg)
}

func (d *Driver) pause(ctx context.Context) {
	if err := d.pacer.Pause(ctx); err != nil {
		d.logger.DebugWithFields("Pacing interrupted", map[string]interface{}{"error": err.Error()})
	}
}

func (d *Driver) status(amt, msg string) {
	d.report(progress.Event{Type: progress.EventStatus, Amount: amt, Message: msg})
}

func (d *Driver) recordAmount(rec models.InvoiceRecord) {
	if d.metrics == nil {
		return
	}
	switch {
	case rec.InvoiceNumber == models.Error:
		d.metrics.RecordAmount(metrics.OutcomeError)
	case rec.InvoiceNumber == models.NotFound:
		d.metrics.RecordAmount(metrics.OutcomeNotFound)
	default:
		d.metrics.RecordAmount(metrics.OutcomeFound)
	}
}

func (d *Driver) recordShipment(outcome string) {
	if d.metrics != nil {
		d.metrics.RecordShipment(outcome)
	}
}

func errorRecord(amt string) models.InvoiceRecord {
	return models.InvoiceRecord{Amount: amt, InvoiceNumber: models.Error, Shipments: []models.ShipmentRecord{}}
}

func logNotFound(log logger.Logger, amt string, diag *protocol.Diagnostics) {
	fields := map[string]interface{}{"amount": amt}
	if diag != nil {
		fields["url"] = diag.URL
		fields["visible_amounts"] = diag.VisibleAmounts
		fields["identifier_like"] = diag.IdentifierLike
		fields["scroll_attempts"] = diag.ScrollAttempts
	}
	log.WarnWithFields("Invoice not found for amount", fields)
}
