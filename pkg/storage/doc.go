// Package storage persists export artifacts to the output directory.
//
// Files are written to a temporary name, synced, and renamed into place so a
// crash never leaves a truncated workbook behind. Existing files are never
// overwritten; a colliding name gets a numeric suffix instead.
package storage
