// Package checkpoint journals extraction progress so an interrupted run can
// be resumed.
//
// After each amount is finalized the result so far is written atomically to
// a JSON file named after the request key. A resumed run reuses the records
// that located an invoice and processes the remaining amounts, including
// those previously recorded as NOT FOUND or ERROR.
//
// Journals are stored in platform-specific data directories:
//   - Linux: ~/.local/share/invoicescraper/checkpoints/
//   - macOS: ~/Library/Application Support/invoicescraper/checkpoints/
//   - Windows: %APPDATA%/invoicescraper/checkpoints/
package checkpoint
