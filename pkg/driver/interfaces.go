package driver

import (
	"context"
	"time"

	"invoicescraper/pkg/models"
	"invoicescraper/pkg/protocol"
)

// AgentClient defines the page agent operations the driver sequences
type AgentClient interface {
	LocateAndOpenInvoice(ctx context.Context, amount string) (*protocol.InvoiceResult, error)
	ClickTrackingEntry(ctx context.Context, trackingID string) (bool, error)
	ScrapeShipmentFields(ctx context.Context) (map[string]string, error)
	WaitForViewReady(ctx context.Context, fragment, marker string, timeout time.Duration) (bool, error)
	NavigateBack(ctx context.Context) error
	Ping(ctx context.Context) (bool, error)
	Diagnose(ctx context.Context) (*protocol.Diagnostics, error)
}

// Navigator drives the page itself: full loads and agent injection
type Navigator interface {
	Navigate(ctx context.Context, url string) error
	Install(ctx context.Context) error
}

// ArtifactStore persists the exported workbook
type ArtifactStore interface {
	SaveArtifact(name string, data []byte) (string, error)
}

// Recorder receives run metrics
type Recorder interface {
	RecordAmount(outcome string)
	RecordShipment(outcome string)
	RecordStateTransition(from, to string)
	RecordRun(state string)
}

// Journal persists finalized records so an interrupted run can resume
type Journal interface {
	Resumed() []models.InvoiceRecord
	Record(rec models.InvoiceRecord) error
	Finish() error
}

// JournalOpener opens the journal for a run
type JournalOpener func(requestKey, runID string, amounts []string) (Journal, error)
