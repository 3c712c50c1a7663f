package agent

import (
	"context"
	"fmt"

	"invoicescraper/internal/dispatch"
	errs "invoicescraper/pkg/errors"
	"invoicescraper/pkg/logger"
	"invoicescraper/pkg/protocol"
)

// job is either a protocol request or a host command such as a navigation
type job struct {
	req protocol.Request
	run func(ctx context.Context) error
}

// Server serves protocol requests against an Agent one at a time
type Server struct {
	agent  *Agent
	queue  *dispatch.Queue[job, protocol.Response]
	logger logger.Logger
}

// NewServer creates a server for a
func NewServer(a *Agent, log logger.Logger) *Server {
	if log == nil {
		log = logger.GetLogger()
	}
	s := &Server{agent: a, logger: log.WithField("component", "agent-server")}
	s.queue = dispatch.New(s.handle, 4, s.logger)
	return s
}

// Start launches the worker
func (s *Server) Start() {
	s.queue.Start()
	logger.LogComponentStart("agent-server", nil)
}

// Stop waits for the request in progress and rejects new ones
func (s *Server) Stop() {
	s.queue.Stop()
	logger.LogComponentStop("agent-server", "stopped")
}

// Send implements protocol.Transport
func (s *Server) Send(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	return s.queue.Submit(ctx, job{req: req})
}

// Navigate loads url on the served page
func (s *Server) Navigate(ctx context.Context, url string) error {
	return s.command(ctx, "navigate", func(ctx context.Context) error {
		return s.agent.Navigate(ctx, url)
	})
}

// Install injects the agent into the served page
func (s *Server) Install(ctx context.Context) error {
	return s.command(ctx, "install", s.agent.Install)
}

func (s *Server) command(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	resp, err := s.queue.Submit(ctx, job{req: protocol.Request{ID: op}, run: fn})
	if err != nil {
		return errs.Transport(op, err)
	}
	return resp.Err(op)
}

func (s *Server) handle(ctx context.Context, j job) (resp protocol.Response) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorWithFields("Agent panic", map[string]interface{}{
				"action": j.req.Action,
				"panic":  fmt.Sprint(r),
			})
			resp = protocol.Failure(j.req.ID, errs.Transport(string(j.req.Action), fmt.Errorf("agent panic: %v", r)))
		}
	}()

	if j.run != nil {
		if err := j.run(ctx); err != nil {
			return protocol.Failure(j.req.ID, asTransport(j.req.ID, err))
		}
		return protocol.Response{ID: j.req.ID, Success: true}
	}
	return s.dispatch(ctx, j.req)
}

func (s *Server) dispatch(ctx context.Context, req protocol.Request) protocol.Response {
	a := s.agent
	p := req.Params
	resp := protocol.Response{ID: req.ID, Success: true}
	var err error

	switch req.Action {
	case protocol.ActionLocateAndOpenInvoice:
		var inv *protocol.InvoiceResult
		if inv, err = a.LocateAndOpenInvoice(ctx, p.Amount); err == nil {
			resp.Invoice = inv
			resp.Diagnostics = inv.Diagnostics
		}
	case protocol.ActionClickTrackingEntry:
		resp.Clicked, err = a.ClickTrackingEntry(ctx, p.TrackingID)
	case protocol.ActionScrapeShipmentFields:
		resp.Fields, err = a.ScrapeShipmentFields(ctx)
	case protocol.ActionWaitForViewReady:
		resp.Ready, err = a.WaitForViewReady(ctx, p.URLFragment, p.Marker, p.Timeout)
	case protocol.ActionNavigateBack:
		err = a.NavigateBack(ctx)
	case protocol.ActionPing:
		resp.Alive, err = a.Ping(ctx)
	case protocol.ActionDiagnose:
		resp.Diagnostics, err = a.Diagnose(ctx)
	default:
		err = errs.New(errs.ErrorTypeFatal, string(req.Action), "unknown action")
	}

	if err != nil {
		return protocol.Failure(req.ID, asTransport(string(req.Action), err))
	}
	return resp
}

// asTransport types any untyped execution failure as transport
func asTransport(op string, err error) error {
	if errs.TypeOf(err) == errs.ErrorTypeUnknown {
		return errs.Transport(op, err)
	}
	return err
}
