package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"invoicescraper/pkg/config"
	errs "invoicescraper/pkg/errors"
	"invoicescraper/pkg/logger"
)

// Page is a single browser tab
type Page interface {
	// Navigate loads url in the tab
	Navigate(ctx context.Context, url string) error
	// WaitLoad blocks until the document finished loading
	WaitLoad(ctx context.Context) error
	// URL returns the current location
	URL(ctx context.Context) (string, error)
	// HTML returns the serialized document
	HTML(ctx context.Context) (string, error)
	// Evaluate runs a one-argument function expression and returns its JSON result
	Evaluate(ctx context.Context, script string, arg interface{}) (json.RawMessage, error)
	// Click dispatches a real mouse click on the first element matching selector
	Click(ctx context.Context, selector string) error
	// Back performs a history back navigation
	Back(ctx context.Context) error
	// Close releases the backend. Attached browsers are left running.
	Close() error
}

// Backend names
const (
	DriverRod        = "rod"
	DriverPlaywright = "playwright"
)

// Open connects the configured backend and selects the working tab
func Open(ctx context.Context, cfg config.BrowserConfig, log logger.Logger) (Page, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	log = log.WithField("driver", cfg.Driver)

	switch strings.ToLower(cfg.Driver) {
	case "", DriverRod:
		return openRod(ctx, cfg, log)
	case DriverPlaywright:
		return openPlaywright(ctx, cfg, log)
	default:
		return nil, errs.New(errs.ErrorTypeFatal, "browser.Open", fmt.Sprintf("unknown browser driver %q", cfg.Driver))
	}
}

// matchPage picks the index of the first URL containing match. An empty
// match selects the first tab. -1 means no candidate.
func matchPage(urls []string, match string) int {
	if len(urls) == 0 {
		return -1
	}
	if match == "" {
		return 0
	}
	for i, u := range urls {
		if strings.Contains(u, match) {
			return i
		}
	}
	return -1
}
