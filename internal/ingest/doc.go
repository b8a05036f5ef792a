// Package ingest turns examination result spreadsheets into raw rows.
//
// A batch holds one to Options.MaxFiles files. Each file is sniffed, opened
// with excelize (.xlsx) or extrame/xls (.xls), and scanned for the first
// sheet whose header carries SEM, REGNO, SCODE and GR (CNo is optional).
// Files are decoded concurrently and their rows concatenated in file
// order. Any failure rejects the whole batch.
package ingest
