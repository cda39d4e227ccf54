// Package ingest reads customer-service event logs into raw records.
//
// Each supported format (CSV/TSV, JSON array, JSON Lines) has its own
// importer that implements the Importer interface. The engine picks an
// importer by file extension, walks directories, and collects non-fatal
// row problems as ImportErrors instead of aborting the import.
//
// Every record keeps its provenance: source file path and line (or
// element) number.
package ingest
