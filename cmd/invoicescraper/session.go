package main

import (
	"context"
	"fmt"

	"invoicescraper/pkg/agent"
	"invoicescraper/pkg/browser"
	"invoicescraper/pkg/config"
	"invoicescraper/pkg/logger"
	"invoicescraper/pkg/protocol"
)

// session is a connected page with an agent serving protocol requests
type session struct {
	page   browser.Page
	agent  *agent.Agent
	server *agent.Server
	client *protocol.Client
}

// openSession connects to the browser and starts the agent server. Observers
// are optional.
func openSession(ctx context.Context, cfg *config.Config, log logger.Logger, calls protocol.Observer, strategies agent.StrategyObserver) (*session, error) {
	page, err := browser.Open(ctx, cfg.Browser, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open browser page: %w", err)
	}

	a, err := agent.New(page, cfg, log)
	if err != nil {
		page.Close()
		return nil, fmt.Errorf("failed to create page agent: %w", err)
	}
	if strategies != nil {
		a.SetObserver(strategies)
	}

	srv := agent.NewServer(a, log)
	srv.Start()

	client := protocol.NewClient(srv, timeoutsFrom(cfg.Timing), log)
	if calls != nil {
		client.SetObserver(calls)
	}

	return &session{page: page, agent: a, server: srv, client: client}, nil
}

func (s *session) Close() {
	s.server.Stop()
	if err := s.page.Close(); err != nil {
		logger.GetLogger().WithError(err).Warn("Failed to close browser page")
	}
}

func timeoutsFrom(t config.TimingConfig) protocol.Timeouts {
	return protocol.Timeouts{
		Locate:       t.LocateTimeout,
		Click:        t.ClickTimeout,
		Scrape:       t.ScrapeTimeout,
		NavigateBack: t.NavigateBackTimeout,
		Ping:         t.PingTimeout,
		Diagnose:     t.DiagnoseTimeout,
	}
}
