// Package ui renders terminal output for the CLI: colors, a one-line
// progress display and desktop notifications.
package ui
