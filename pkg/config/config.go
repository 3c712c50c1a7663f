package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the invoice scraper
type Config struct {
	// Portal routes and view markers
	Portal PortalConfig `yaml:"portal" json:"portal"`

	// Browser automation backend
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Per-call timeouts and pacing
	Timing TimingConfig `yaml:"timing" json:"timing"`

	// Page agent selectors and heuristics
	Agent AgentConfig `yaml:"agent" json:"agent"`

	// Workbook export settings
	Export ExportConfig `yaml:"export" json:"export"`

	// Run journal settings
	Checkpoint CheckpointConfig `yaml:"checkpoint" json:"checkpoint"`

	// Notification preferences
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`

	// Progress event publishing
	Progress ProgressConfig `yaml:"progress" json:"progress"`

	// Prometheus metrics endpoint
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// PortalConfig describes the fixed routes of the billing portal
type PortalConfig struct {
	ListURL          string `yaml:"list_url" json:"list_url"`
	InvoiceFragment  string `yaml:"invoice_fragment" json:"invoice_fragment"`
	ShipmentFragment string `yaml:"shipment_fragment" json:"shipment_fragment"`
	InvoiceMarker    string `yaml:"invoice_marker" json:"invoice_marker"`
	ShipmentMarker   string `yaml:"shipment_marker" json:"shipment_marker"`
}

// BrowserConfig selects and connects the browser automation backend
type BrowserConfig struct {
	Driver     string `yaml:"driver" json:"driver"`
	ControlURL string `yaml:"control_url" json:"control_url"`
	PageMatch  string `yaml:"page_match" json:"page_match"`
	Launch     bool   `yaml:"launch" json:"launch"`
}

// TimingConfig holds agent call timeouts and pacing delays
type TimingConfig struct {
	LocateTimeout        time.Duration `yaml:"locate_timeout" json:"locate_timeout"`
	ClickTimeout         time.Duration `yaml:"click_timeout" json:"click_timeout"`
	ScrapeTimeout        time.Duration `yaml:"scrape_timeout" json:"scrape_timeout"`
	ViewReadyTimeout     time.Duration `yaml:"view_ready_timeout" json:"view_ready_timeout"`
	LandingTimeout       time.Duration `yaml:"landing_timeout" json:"landing_timeout"`
	NavigateBackTimeout  time.Duration `yaml:"navigate_back_timeout" json:"navigate_back_timeout"`
	NavigateTimeout      time.Duration `yaml:"navigate_timeout" json:"navigate_timeout"`
	PingTimeout          time.Duration `yaml:"ping_timeout" json:"ping_timeout"`
	DiagnoseTimeout      time.Duration `yaml:"diagnose_timeout" json:"diagnose_timeout"`
	TableWait            time.Duration `yaml:"table_wait" json:"table_wait"`
	PollInterval         time.Duration `yaml:"poll_interval" json:"poll_interval"`
	ExpandWait           time.Duration `yaml:"expand_wait" json:"expand_wait"`
	MinDelay             time.Duration `yaml:"min_delay" json:"min_delay"`
	MaxDelay             time.Duration `yaml:"max_delay" json:"max_delay"`
	NavigationsPerMinute int           `yaml:"navigations_per_minute" json:"navigations_per_minute"`
}

// ComponentConfig names the rows and cells of a known table widget
type ComponentConfig struct {
	Container string `yaml:"container" json:"container"`
	Row       string `yaml:"row" json:"row"`
	Cell      string `yaml:"cell" json:"cell"`
}

// AgentConfig holds the selectors, keywords and patterns the page agent matches against
type AgentConfig struct {
	RowSelectors         []string        `yaml:"row_selectors" json:"row_selectors"`
	FieldAttribute       string          `yaml:"field_attribute" json:"field_attribute"`
	Component            ComponentConfig `yaml:"component" json:"component"`
	VirtualContainers    []string        `yaml:"virtual_containers" json:"virtual_containers"`
	MaxScrollAttempts    int             `yaml:"max_scroll_attempts" json:"max_scroll_attempts"`
	ScrollStep           int             `yaml:"scroll_step" json:"scroll_step"`
	InvoiceHeaders       []string        `yaml:"invoice_headers" json:"invoice_headers"`
	AmountHeaders        []string        `yaml:"amount_headers" json:"amount_headers"`
	TrackingLabels       []string        `yaml:"tracking_labels" json:"tracking_labels"`
	IdentifierPattern    string          `yaml:"identifier_pattern" json:"identifier_pattern"`
	InvoiceNumberPattern string          `yaml:"invoice_number_pattern" json:"invoice_number_pattern"`
	LabelSelectors       []string        `yaml:"label_selectors" json:"label_selectors"`
	SectionPrefixes      []string        `yaml:"section_prefixes" json:"section_prefixes"`
	AddressHeadings      []string        `yaml:"address_headings" json:"address_headings"`
	BoilerplateLines     []string        `yaml:"boilerplate_lines" json:"boilerplate_lines"`
	SmallFontPx          float64         `yaml:"small_font_px" json:"small_font_px"`
	BoldWeight           int             `yaml:"bold_weight" json:"bold_weight"`
}

// ExportConfig holds workbook output configuration
type ExportConfig struct {
	OutputDir          string   `yaml:"output_dir" json:"output_dir"`
	FileNamePattern    string   `yaml:"file_name_pattern" json:"file_name_pattern"`
	MaxSheetNameLength int      `yaml:"max_sheet_name_length" json:"max_sheet_name_length"`
	MaxColumnWidth     float64  `yaml:"max_column_width" json:"max_column_width"`
	PreferredFields    []string `yaml:"preferred_fields" json:"preferred_fields"`
}

// CheckpointConfig holds run journal configuration
type CheckpointConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Directory string `yaml:"directory" json:"directory"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	OnComplete bool `yaml:"on_complete" json:"on_complete"`
	OnError    bool `yaml:"on_error" json:"on_error"`
}

// ProgressConfig holds progress event publishing configuration
type ProgressConfig struct {
	NATSURL string `yaml:"nats_url" json:"nats_url"`
	Subject string `yaml:"subject" json:"subject"`
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
	Namespace  string `yaml:"namespace" json:"namespace"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Portal: PortalConfig{
			InvoiceFragment:  "/invoices/",
			ShipmentFragment: "/shipments/",
			InvoiceMarker:    "[data-view='invoice-detail']",
			ShipmentMarker:   "[data-view='shipment-detail']",
		},
		Browser: BrowserConfig{
			Driver:     "rod",
			ControlURL: "http://127.0.0.1:9222",
		},
		Timing: TimingConfig{
			LocateTimeout:        90 * time.Second,
			ClickTimeout:         15 * time.Second,
			ScrapeTimeout:        30 * time.Second,
			ViewReadyTimeout:     20 * time.Second,
			LandingTimeout:       4 * time.Second,
			NavigateBackTimeout:  10 * time.Second,
			NavigateTimeout:      30 * time.Second,
			PingTimeout:          3 * time.Second,
			DiagnoseTimeout:      15 * time.Second,
			TableWait:            10 * time.Second,
			PollInterval:         250 * time.Millisecond,
			ExpandWait:           500 * time.Millisecond,
			MinDelay:             2 * time.Second,
			MaxDelay:             5 * time.Second,
			NavigationsPerMinute: 30,
		},
		Agent: AgentConfig{
			RowSelectors:   []string{"[data-row-type='invoice']", "[data-testid='invoice-row']"},
			FieldAttribute: "data-field",
			Component: ComponentConfig{
				Container: "[role='grid']",
				Row:       "[role='row']",
				Cell:      "[role='gridcell']",
			},
			VirtualContainers:    []string{"[data-virtualized]", ".virtual-scroll", "[role='grid']"},
			MaxScrollAttempts:    8,
			ScrollStep:           600,
			InvoiceHeaders:       []string{"invoice number", "invoice #", "invoice no", "invoice"},
			AmountHeaders:        []string{"amount", "balance", "total", "due"},
			TrackingLabels:       []string{"tracking"},
			IdentifierPattern:    `^(1Z[0-9A-Z]{16}|\d{12}|\d{15}|\d{20,22})$`,
			InvoiceNumberPattern: `^[A-Z]{2,5}-?\d{3,}$`,
			LabelSelectors:       []string{"[data-label]", ".field-label", ".label"},
			SectionPrefixes:      []string{"Shipment", "Charges", "Reference", "Customs"},
			AddressHeadings:      []string{"Ship From", "Ship To", "Shipper", "Consignee", "Bill To"},
			BoilerplateLines:     []string{"View on map", "Edit", "Copy", "Change", "Show more"},
			SmallFontPx:          13,
			BoldWeight:           600,
		},
		Export: ExportConfig{
			OutputDir:          "./exports",
			FileNamePattern:    "invoices_{timestamp}.xlsx",
			MaxSheetNameLength: 31,
			MaxColumnWidth:     60,
			PreferredFields:    []string{"Tracking Number", "Ship Date", "Service", "Weight", "Total Charges"},
		},
		Checkpoint: CheckpointConfig{
			Enabled: true,
		},
		Notifications: NotificationConfig{
			Enabled:    true,
			OnComplete: true,
			OnError:    true,
		},
		Progress: ProgressConfig{
			Subject: "invoicescraper.progress",
		},
		Metrics: MetricsConfig{
			Namespace: "invoicescraper",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := os.Getenv("INVOICESCRAPER_LIST_URL"); v != "" {
		c.Portal.ListURL = v
	}
	if v := os.Getenv("INVOICESCRAPER_BROWSER_DRIVER"); v != "" {
		c.Browser.Driver = v
	}
	if v := os.Getenv("INVOICESCRAPER_CONTROL_URL"); v != "" {
		c.Browser.ControlURL = v
	}
	if v := os.Getenv("INVOICESCRAPER_PAGE_MATCH"); v != "" {
		c.Browser.PageMatch = v
	}
	if v := os.Getenv("INVOICESCRAPER_OUTPUT_DIR"); v != "" {
		c.Export.OutputDir = v
	}
	if v := os.Getenv("INVOICESCRAPER_MIN_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("INVOICESCRAPER_MIN_DELAY: %w", err))
		} else {
			c.Timing.MinDelay = d
		}
	}
	if v := os.Getenv("INVOICESCRAPER_MAX_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("INVOICESCRAPER_MAX_DELAY: %w", err))
		} else {
			c.Timing.MaxDelay = d
		}
	}
	if v := os.Getenv("INVOICESCRAPER_NATS_URL"); v != "" {
		c.Progress.NATSURL = v
	}
	if v := os.Getenv("INVOICESCRAPER_METRICS_ADDR"); v != "" {
		c.Metrics.ListenAddr = v
	}
	if v := os.Getenv("INVOICESCRAPER_NOTIFICATIONS_ENABLED"); v != "" {
		c.Notifications.Enabled = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("INVOICESCRAPER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".invoicescraper.yaml",
		".invoicescraper.yml",
		filepath.Join(home, ".config", "invoicescraper", "config.yaml"),
		filepath.Join(home, ".config", "invoicescraper", "config.yml"),
		filepath.Join(home, ".invoicescraper.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	// Portal
	// The list URL may be empty until run needs it
	if c.Portal.ListURL != "" {
		if u, err := url.Parse(c.Portal.ListURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("invoice list URL %q is not an absolute URL", c.Portal.ListURL))
		}
	}
	if c.Portal.InvoiceFragment == "" || c.Portal.ShipmentFragment == "" {
		errs = append(errs, errors.New("invoice and shipment route fragments are required"))
	}

	// Browser
	switch strings.ToLower(c.Browser.Driver) {
	case "rod", "playwright":
	default:
		errs = append(errs, fmt.Errorf("unknown browser driver %q", c.Browser.Driver))
	}
	if c.Browser.ControlURL == "" && !c.Browser.Launch {
		errs = append(errs, errors.New("browser control URL is required unless launch is enabled"))
	}

	// Timing
	timeouts := map[string]time.Duration{
		"locate_timeout":        c.Timing.LocateTimeout,
		"click_timeout":         c.Timing.ClickTimeout,
		"scrape_timeout":        c.Timing.ScrapeTimeout,
		"view_ready_timeout":    c.Timing.ViewReadyTimeout,
		"landing_timeout":       c.Timing.LandingTimeout,
		"navigate_back_timeout": c.Timing.NavigateBackTimeout,
		"navigate_timeout":      c.Timing.NavigateTimeout,
		"ping_timeout":          c.Timing.PingTimeout,
		"poll_interval":         c.Timing.PollInterval,
	}
	for name, d := range timeouts {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Timing.MinDelay < 0 || c.Timing.MaxDelay < c.Timing.MinDelay {
		errs = append(errs, errors.New("pacing delays must satisfy 0 <= min_delay <= max_delay"))
	}
	if c.Timing.NavigationsPerMinute < 0 {
		errs = append(errs, errors.New("navigations per minute cannot be negative"))
	}

	// Agent
	if c.Agent.MaxScrollAttempts < 0 {
		errs = append(errs, errors.New("max scroll attempts cannot be negative"))
	}
	for name, pattern := range map[string]string{
		"identifier_pattern":     c.Agent.IdentifierPattern,
		"invoice_number_pattern": c.Agent.InvoiceNumberPattern,
	} {
		if _, err := regexp.Compile(pattern); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if c.Agent.IdentifierPattern == "" {
		errs = append(errs, errors.New("identifier pattern is required"))
	}

	// Export
	if c.Export.OutputDir == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Export.FileNamePattern == "" {
		errs = append(errs, errors.New("file name pattern is required"))
	}
	if c.Export.MaxSheetNameLength <= 0 || c.Export.MaxSheetNameLength > 31 {
		errs = append(errs, errors.New("max sheet name length must be between 1 and 31"))
	}
	if c.Export.MaxColumnWidth <= 0 || c.Export.MaxColumnWidth > 255 {
		errs = append(errs, errors.New("max column width must be between 1 and 255"))
	}

	// Logging
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["list-url"].(string); ok && v != "" {
		c.Portal.ListURL = v
	}
	if v, ok := flags["browser"].(string); ok && v != "" {
		c.Browser.Driver = v
	}
	if v, ok := flags["control-url"].(string); ok && v != "" {
		c.Browser.ControlURL = v
	}
	if v, ok := flags["page-match"].(string); ok && v != "" {
		c.Browser.PageMatch = v
	}
	if v, ok := flags["launch"].(bool); ok && v {
		c.Browser.Launch = true
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Export.OutputDir = v
	}
	if v, ok := flags["min-delay"].(time.Duration); ok && v > 0 {
		c.Timing.MinDelay = v
	}
	if v, ok := flags["max-delay"].(time.Duration); ok && v > 0 {
		c.Timing.MaxDelay = v
	}
	if v, ok := flags["nats-url"].(string); ok && v != "" {
		c.Progress.NATSURL = v
	}
	if v, ok := flags["metrics-addr"].(string); ok && v != "" {
		c.Metrics.ListenAddr = v
	}
	if v, ok := flags["notifications"].(bool); ok {
		c.Notifications.Enabled = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".invoicescraper.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
