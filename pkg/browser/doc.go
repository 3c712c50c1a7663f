// Package browser adapts a live, already-authenticated browser tab to the
// small Page capability the page agent needs: navigate, wait for load, run a
// script, click a selector and go back.
//
// Two backends are provided. The rod backend attaches to a Chrome instance
// over the DevTools protocol (or launches a headed one); the playwright
// backend does the same through playwright-go's CDP connection. Both select
// the tab whose URL contains the configured page match.
//
//	page, err := browser.Open(ctx, cfg.Browser, log)
//	if err != nil {
//	    return err
//	}
//	defer page.Close()
package browser
