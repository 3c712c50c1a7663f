package logger

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// LogAmountOutcome logs the finalized record for one target amount
func LogAmountOutcome(l Logger, amount, invoiceNumber string, shipments int, err error) {
	fields := map[string]interface{}{
		"amount":         amount,
		"invoice_number": invoiceNumber,
		"shipments":      shipments,
	}

	if err != nil {
		l.WithError(err).ErrorWithFields("Amount finished with error", fields)
		return
	}
	l.InfoWithFields("Amount finalized", fields)
}

// LogSkip logs a shipment or step that was skipped, with the reason
func LogSkip(l Logger, step, reason string, fields map[string]interface{}) {
	merged := map[string]interface{}{
		"step":   step,
		"reason": reason,
	}
	for k, v := range fields {
		merged[k] = v
	}
	l.WarnWithFields("Skipped", merged)
}

// LogStrategyMatch logs which strategy of a cascade produced a result
func LogStrategyMatch(l Logger, operation, strategy string, fields map[string]interface{}) {
	merged := map[string]interface{}{
		"operation": operation,
		"strategy":  strategy,
	}
	for k, v := range fields {
		merged[k] = v
	}
	l.DebugWithFields("Strategy matched", merged)
}

// LogRunProgress logs overall run progress
func LogRunProgress(l Logger, done, total int) {
	percentage := 0.0
	if total > 0 {
		percentage = float64(done) / float64(total) * 100
	}

	l.WithFields(map[string]interface{}{
		"done":       done,
		"total":      total,
		"percentage": fmt.Sprintf("%.1f%%", percentage),
	}).Info("Extraction progress")
}

// LogComponentStart logs when a component starts
func LogComponentStart(component string, config map[string]interface{}) {
	l := GetLogger().WithField("component", component)
	if len(config) > 0 {
		l = l.WithFields(config)
	}
	l.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(component string, reason string) {
	GetLogger().WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
