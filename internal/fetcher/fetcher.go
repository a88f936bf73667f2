// Package fetcher downloads export files and reads CSV, ZIP and XLSX payloads.
package fetcher
