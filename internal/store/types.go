package store

import "time"

// File is a row in the files table.
type File struct {
	ID          int64
	Path        string
	Language    string
	Hash        string
	Snapshot    []byte
	LastChecked time.Time
}

// Diagnostic is a row in the diagnostics table. Decl names the declaration
// the finding is attached to, empty for file-level findings.
type Diagnostic struct {
	ID        int64
	FileID    int64
	Decl      string
	Rule      string
	Severity  string
	Message   string
	StartByte uint32
	EndByte   uint32
}
