// Package logger provides structured logging for the invoice scraper.
//
// It wraps zerolog behind a small Logger interface so components can take a
// logger as a dependency and tests can swap in NewTestLogger or NewNopLogger.
//
// Basic Usage:
//
//	err := logger.Initialize(&cfg.Logging)
//
//	logger.Info("Extraction started")
//	logger.WithField("amount", "452.67").Info("Invoice located")
//	logger.WithError(err).Error("Export failed")
//
// Components usually derive a child logger once:
//
//	log := logger.GetLogger().WithField("component", "driver")
//	log.InfoWithFields("Amount finalized", map[string]interface{}{
//	    "amount":    "452.67",
//	    "shipments": 2,
//	})
//
// The helpers in this package (LogAmountOutcome, LogSkip, LogStrategyMatch)
// keep message text and field names consistent across packages, which is what
// the log-driven tests match on.
package logger
