package progress

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"invoicescraper/pkg/logger"
)

// publisher is the part of *nats.Conn the reporter uses
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSReporter publishes events as JSON on a NATS subject
type NATSReporter struct {
	pub     publisher
	conn    *nats.Conn
	subject string
	logger  logger.Logger
}

// NewNATSReporter connects to url and publishes on subject
func NewNATSReporter(url, subject string, log logger.Logger) (*NATSReporter, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.Name("invoicescraper-progress"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	r := newNATSReporter(nc, subject, log)
	r.conn = nc
	return r, nil
}

func newNATSReporter(pub publisher, subject string, log logger.Logger) *NATSReporter {
	if subject == "" {
		subject = "invoicescraper.progress"
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &NATSReporter{
		pub:     pub,
		subject: subject,
		logger:  log.WithField("component", "progress-nats"),
	}
}

// Report publishes the event; failures are logged and dropped
func (r *NATSReporter) Report(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		r.logger.WithError(err).Warn("Failed to encode progress event")
		return
	}
	if err := r.pub.Publish(r.subject, data); err != nil {
		r.logger.WithError(err).Debug("Failed to publish progress event")
	}
}

// Close flushes pending events and closes the connection
func (r *NATSReporter) Close() {
	if r.conn == nil {
		return
	}
	if err := r.conn.Drain(); err != nil {
		r.conn.Close()
	}
}
