package logger

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicescraper/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{name: "info level", cfg: &config.LoggingConfig{Level: "info"}},
		{name: "debug level", cfg: &config.LoggingConfig{Level: "debug"}},
		{name: "invalid level", cfg: &config.LoggingConfig{Level: "loud"}, wantErr: true},
		{name: "file output", cfg: &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "run.log")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseLogLevel() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if level != tt.expected {
				t.Errorf("parseLogLevel() = %v, want %v", level, tt.expected)
			}
		})
	}
}

func TestDefaultFieldsAndLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.InfoLevel)

	l.Debug("hidden")
	l.Info("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, `"app":"invoicescraper"`)
}

func TestFieldChaining(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.DebugLevel)

	base := l.WithField("amount", "452.67")
	base.
		WithFields(map[string]interface{}{"shipment": 2, "wait": 3 * time.Second}).
		WithError(errors.New("click failed")).
		Warn("shipment skipped")
	base.Info("base untouched")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"amount":"452.67"`)
	assert.Contains(t, lines[0], `"shipment":2`)
	assert.Contains(t, lines[0], `"error":"click failed"`)
	assert.NotContains(t, lines[1], "shipment")
}

func TestWithErrorNil(t *testing.T) {
	l := NewWithWriter(&bytes.Buffer{}, zerolog.InfoLevel)
	assert.Same(t, l, l.WithError(nil))
}

func TestGlobalLogger(t *testing.T) {
	require.NoError(t, Initialize(&config.LoggingConfig{Level: "debug"}))
	assert.NotNil(t, GetLogger())

	tl := NewTestLogger()
	SetLogger(tl)
	defer SetLogger(nil)

	WithField("k", "v").Info("with field")
	LogComponentStart("driver", map[string]interface{}{"amounts": 2})

	assert.True(t, tl.HasMessage("with field"))
	assert.Len(t, tl.FindMessages("Component started", map[string]interface{}{"component": "driver", "amounts": 2}), 1)
}

func TestHelpers(t *testing.T) {
	tl := NewTestLogger()

	LogAmountOutcome(tl, "452.67", "INV001", 2, nil)
	LogAmountOutcome(tl, "1431.43", "ERROR", 0, errors.New("agent gone"))
	LogSkip(tl, "open-shipment", "click failed", map[string]interface{}{"tracking_id": "111"})
	LogStrategyMatch(tl, "locate-invoice", "table-scan", nil)
	LogRunProgress(tl, 1, 4)

	assert.Len(t, tl.FindMessages("Amount finalized", map[string]interface{}{"invoice_number": "INV001"}), 1)
	errs := tl.GetMessagesByLevel("ERROR")
	require.Len(t, errs, 1)
	assert.EqualError(t, errs[0].Error, "agent gone")
	assert.Len(t, tl.FindMessages("Skipped", map[string]interface{}{"reason": "click failed", "tracking_id": "111"}), 1)
	assert.Len(t, tl.FindMessages("Strategy matched", map[string]interface{}{"strategy": "table-scan"}), 1)
	assert.Len(t, tl.FindMessages("Extraction progress", map[string]interface{}{"percentage": "25.0%"}), 1)
}
