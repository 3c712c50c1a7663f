package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"invoicescraper/pkg/browser"
	"invoicescraper/pkg/config"
	errs "invoicescraper/pkg/errors"
	"invoicescraper/pkg/logger"
	"invoicescraper/pkg/retry"
)

// Agent runs interactions against one browser page
type Agent struct {
	page     browser.Page
	portal   config.PortalConfig
	timing   config.TimingConfig
	cfg      config.AgentConfig
	logger   logger.Logger
	observer StrategyObserver

	identifier    *regexp.Regexp
	invoiceNumber *regexp.Regexp

	rows       Cascade[rowMatch]
	fullText   Cascade[rowMatch]
	tracking   Cascade[[]string]
	trackClick Cascade[string]
}

// New creates an agent for page. The patterns in cfg must compile; they are
// checked by config validation.
func New(page browser.Page, cfg *config.Config, log logger.Logger) (*Agent, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	identifier, err := regexp.Compile(cfg.Agent.IdentifierPattern)
	if err != nil {
		return nil, fmt.Errorf("identifier pattern: %w", err)
	}
	invoiceNumber, err := regexp.Compile(cfg.Agent.InvoiceNumberPattern)
	if err != nil {
		return nil, fmt.Errorf("invoice number pattern: %w", err)
	}

	a := &Agent{
		page:          page,
		portal:        cfg.Portal,
		timing:        cfg.Timing,
		cfg:           cfg.Agent,
		logger:        log.WithField("component", "agent"),
		identifier:    identifier,
		invoiceNumber: invoiceNumber,
	}
	a.rows = a.rowCascade()
	a.fullText = a.fullTextCascade()
	a.tracking = a.trackingCascade()
	a.trackClick = a.trackingClickCascade()
	return a, nil
}

// SetObserver attaches a strategy observer
func (a *Agent) SetObserver(o StrategyObserver) {
	a.observer = o
}

// evaluate runs script with arg and decodes the result into out
func (a *Agent) evaluate(ctx context.Context, op, script string, arg interface{}, out interface{}) error {
	raw, err := a.page.Evaluate(ctx, script, arg)
	if err != nil {
		return errs.Transport(op, err)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errs.Transport(op, fmt.Errorf("decode script result: %w", err))
	}
	return nil
}

// Install injects the bootstrap script into the current document
func (a *Agent) Install(ctx context.Context) error {
	var ok bool
	if err := a.evaluate(ctx, "install", scriptBootstrap, agentVersion, &ok); err != nil {
		return err
	}
	if !ok {
		return errs.New(errs.ErrorTypeTransport, "install", "bootstrap script did not report success")
	}
	a.logger.Debug("Agent installed")
	return nil
}

// Ping reports whether the current document carries the agent
func (a *Agent) Ping(ctx context.Context) (bool, error) {
	var alive bool
	if err := a.evaluate(ctx, "ping", scriptPing, agentVersion, &alive); err != nil {
		return false, err
	}
	return alive, nil
}

// Navigate loads url and waits for the load event
func (a *Agent) Navigate(ctx context.Context, url string) error {
	if err := a.page.Navigate(ctx, url); err != nil {
		return errs.Transport("navigate", err)
	}
	if err := a.page.WaitLoad(ctx); err != nil {
		return errs.Transport("navigate", err)
	}
	return nil
}

// NavigateBack performs a history back navigation
func (a *Agent) NavigateBack(ctx context.Context) error {
	if err := a.page.Back(ctx); err != nil {
		return errs.Transport("navigate-back", err)
	}
	return nil
}

// ensure installs the agent when a navigation replaced the document
func (a *Agent) ensure(ctx context.Context) error {
	alive, err := a.Ping(ctx)
	if err != nil {
		return err
	}
	if alive {
		return nil
	}
	return a.Install(ctx)
}

// snapshot annotates the page and parses its HTML
func (a *Agent) snapshot(ctx context.Context) (*Snapshot, error) {
	if err := a.ensure(ctx); err != nil {
		return nil, err
	}
	if err := a.evaluate(ctx, "annotate", scriptAnnotate, nil, nil); err != nil {
		return nil, err
	}
	url, err := a.page.URL(ctx)
	if err != nil {
		return nil, errs.Transport("snapshot", err)
	}
	html, err := a.page.HTML(ctx)
	if err != nil {
		return nil, errs.Transport("snapshot", err)
	}
	s, err := NewSnapshot(url, html)
	if err != nil {
		return nil, errs.Transport("snapshot", err)
	}
	return s, nil
}

// exists reports whether selector matches in the live page
func (a *Agent) exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	err := a.evaluate(ctx, "exists", scriptExists, selector, &found)
	return found, err
}

type pageState struct {
	URL        string `json:"url"`
	ReadyState string `json:"readyState"`
}

// WaitForViewReady polls until the URL contains fragment with the document
// past loading, or marker is present. A client-side route change satisfies
// either signal without a load event. Timing out is not an error.
func (a *Agent) WaitForViewReady(ctx context.Context, fragment, marker string, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = a.timing.ViewReadyTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := retry.Poll(waitCtx, a.timing.PollInterval, func() (bool, error) {
		return a.viewReady(waitCtx, fragment, marker), nil
	})
	if err == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, errs.Transport("wait-for-view-ready", ctx.Err())
	}
	a.logger.DebugWithFields("View not ready before timeout", map[string]interface{}{
		"fragment": fragment,
		"marker":   marker,
		"timeout":  timeout,
	})
	return false, nil
}

// viewReady checks both readiness signals once. Script failures count as
// not ready because the document may be mid-navigation.
func (a *Agent) viewReady(ctx context.Context, fragment, marker string) bool {
	var st pageState
	if err := a.evaluate(ctx, "state", scriptState, nil, &st); err == nil {
		if fragment != "" && strings.Contains(st.URL, fragment) && st.ReadyState != "loading" {
			return true
		}
		if fragment == "" && marker == "" && st.ReadyState == "complete" {
			return true
		}
	}
	if marker != "" {
		if found, err := a.exists(ctx, marker); err == nil && found {
			return true
		}
	}
	return false
}

// waitFor polls exists(selector) for at most d. It returns false on timeout
// and an error only when ctx itself ended.
func (a *Agent) waitFor(ctx context.Context, selector string, d time.Duration) (bool, error) {
	waitCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	err := retry.Poll(waitCtx, a.timing.PollInterval, func() (bool, error) {
		found, err := a.exists(waitCtx, selector)
		return err == nil && found, nil
	})
	if err == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, errs.Transport("wait", ctx.Err())
	}
	return false, nil
}

// click dispatches a real mouse click on an annotated element
func (a *Agent) click(ctx context.Context, op, id string) error {
	if err := a.page.Click(ctx, selectorFor(id)); err != nil {
		return errs.Transport(op, err)
	}
	return nil
}
