package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"invoicescraper/pkg/config"
	errs "invoicescraper/pkg/errors"
	"invoicescraper/pkg/logger"
)

type playwrightPage struct {
	pw       *playwright.Playwright
	browser  playwright.Browser
	page     playwright.Page
	launched bool
	logger   logger.Logger
}

func openPlaywright(ctx context.Context, cfg config.BrowserConfig, log logger.Logger) (Page, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeFatal, "browser.playwright", fmt.Errorf("start playwright: %w", err))
	}

	var b playwright.Browser
	if cfg.Launch {
		b, err = pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(false),
		})
	} else {
		b, err = pw.Chromium.ConnectOverCDP(cfg.ControlURL)
	}
	if err != nil {
		_ = pw.Stop()
		return nil, errs.Wrap(errs.ErrorTypeFatal, "browser.connect", err)
	}

	var pages []playwright.Page
	for _, bc := range b.Contexts() {
		pages = append(pages, bc.Pages()...)
	}
	urls := make([]string, len(pages))
	for i, p := range pages {
		urls[i] = p.URL()
	}

	var page playwright.Page
	if idx := matchPage(urls, cfg.PageMatch); idx >= 0 {
		page = pages[idx]
	} else if cfg.Launch || len(pages) == 0 {
		page, err = b.NewPage()
		if err != nil {
			_ = pw.Stop()
			return nil, errs.Wrap(errs.ErrorTypeFatal, "browser.page", err)
		}
	} else {
		_ = pw.Stop()
		return nil, errs.New(errs.ErrorTypeFatal, "browser.page", fmt.Sprintf("no open tab matches %q", cfg.PageMatch))
	}

	log.InfoWithFields("Attached to browser tab", map[string]interface{}{
		"control_url": cfg.ControlURL,
		"tabs":        len(pages),
		"launched":    cfg.Launch,
	})

	return &playwrightPage{pw: pw, browser: b, page: page, launched: cfg.Launch, logger: log}, nil
}

// timeoutMS converts the remaining ctx budget to a playwright timeout.
// Zero disables the playwright timeout.
func timeoutMS(ctx context.Context) *float64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return playwright.Float(0)
	}
	remaining := time.Until(deadline)
	if remaining < time.Millisecond {
		remaining = time.Millisecond
	}
	return playwright.Float(float64(remaining.Milliseconds()))
}

func (p *playwrightPage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   timeoutMS(ctx),
	})
	return err
}

func (p *playwrightPage) WaitLoad(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateLoad,
		Timeout: timeoutMS(ctx),
	})
}

func (p *playwrightPage) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.URL(), nil
}

func (p *playwrightPage) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.Content()
}

func (p *playwrightPage) Evaluate(ctx context.Context, script string, arg interface{}) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := p.page.Evaluate(script, arg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func (p *playwrightPage) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Locator(selector).First().Click(playwright.LocatorClickOptions{
		Timeout: timeoutMS(ctx),
	})
}

func (p *playwrightPage) Back(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.GoBack(playwright.PageGoBackOptions{
		Timeout: timeoutMS(ctx),
	})
	return err
}

func (p *playwrightPage) Close() error {
	if p.launched {
		if err := p.browser.Close(); err != nil {
			p.logger.WarnWithFields("Failed to close browser", map[string]interface{}{"error": err.Error()})
		}
	}
	return p.pw.Stop()
}
