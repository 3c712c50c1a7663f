package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"invoicescraper/pkg/config"
	errs "invoicescraper/pkg/errors"
	"invoicescraper/pkg/logger"
)

type rodPage struct {
	browser  *rod.Browser
	page     *rod.Page
	launched bool
	logger   logger.Logger
}

func openRod(ctx context.Context, cfg config.BrowserConfig, log logger.Logger) (Page, error) {
	controlURL := cfg.ControlURL
	launched := false

	if cfg.Launch {
		u, err := launcher.New().Headless(false).Launch()
		if err != nil {
			return nil, errs.Wrap(errs.ErrorTypeFatal, "browser.launch", err)
		}
		controlURL = u
		launched = true
	} else {
		u, err := launcher.ResolveURL(controlURL)
		if err != nil {
			return nil, errs.Wrap(errs.ErrorTypeFatal, "browser.resolve", fmt.Errorf("resolve %s: %w", controlURL, err))
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeFatal, "browser.connect", err)
	}

	pages, err := b.Pages()
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeFatal, "browser.pages", err)
	}

	urls := make([]string, len(pages))
	for i, p := range pages {
		if info, err := p.Info(); err == nil {
			urls[i] = info.URL
		}
	}

	var page *rod.Page
	if idx := matchPage(urls, cfg.PageMatch); idx >= 0 {
		page = pages[idx]
	} else if launched || len(pages) == 0 {
		page, err = b.Page(proto.TargetCreateTarget{})
		if err != nil {
			return nil, errs.Wrap(errs.ErrorTypeFatal, "browser.page", err)
		}
	} else {
		return nil, errs.New(errs.ErrorTypeFatal, "browser.page", fmt.Sprintf("no open tab matches %q", cfg.PageMatch))
	}

	log.InfoWithFields("Attached to browser tab", map[string]interface{}{
		"control_url": controlURL,
		"tabs":        len(pages),
		"launched":    launched,
	})

	return &rodPage{browser: b, page: page, launched: launched, logger: log}, nil
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	return p.page.Context(ctx).Navigate(url)
}

func (p *rodPage) WaitLoad(ctx context.Context) error {
	return p.page.Context(ctx).WaitLoad()
}

func (p *rodPage) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *rodPage) Evaluate(ctx context.Context, script string, arg interface{}) (json.RawMessage, error) {
	res, err := p.page.Context(ctx).Evaluate(rod.Eval(script, arg).ByPromise())
	if err != nil {
		return nil, err
	}
	return json.Marshal(res.Value)
}

func (p *rodPage) Click(ctx context.Context, selector string) error {
	el, err := p.page.Context(ctx).Sleeper(rod.NotFoundSleeper).Element(selector)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) Back(ctx context.Context) error {
	return p.page.Context(ctx).NavigateBack()
}

func (p *rodPage) Close() error {
	if !p.launched {
		return nil
	}
	return p.browser.Close()
}
