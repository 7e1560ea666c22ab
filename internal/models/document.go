package models

import "strings"

// Document is one chunk of an uploaded file. Documents are never mutated after ingestion.
type Document struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	SourceFilename string    `json:"source_filename"`
	ChunkID        int       `json:"chunk_id"`
	Embedding      []float32 `json:"-"`
}

// Table is the tabular payload of a spreadsheet-like file.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// ColumnIndex returns the position of name, compared case-insensitively, or -1.
func (t *Table) ColumnIndex(name string) int {
	if t == nil {
		return -1
	}
	for i, c := range t.Columns {
		if strings.EqualFold(strings.TrimSpace(c), strings.TrimSpace(name)) {
			return i
		}
	}
	return -1
}

// Column returns the cells of column i, with missing trailing cells as "".
func (t *Table) Column(i int) []string {
	out := make([]string, len(t.Rows))
	for r, row := range t.Rows {
		if i < len(row) {
			out[r] = row[i]
		}
	}
	return out
}

// NamedTable pairs a table with the file it was extracted from.
type NamedTable struct {
	Filename string
	Table    *Table
}

// Extraction is the result of running a text extractor over a file.
type Extraction struct {
	Text   string
	Table  *Table
	OK     bool
	Reason string
}

// Upload is a file received by the upload boundary.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// FileResult reports what happened to one file of an upload batch.
type FileResult struct {
	Filename string `json:"filename"`
	Chunks   int    `json:"chunks"`
	Skipped  bool   `json:"skipped,omitempty"`
	Error    string `json:"error,omitempty"`
}

// IngestReport is returned for each upload batch.
type IngestReport struct {
	Files []FileResult `json:"files"`
	Count int          `json:"count"`
}

// Hit is one vector index search result.
type Hit struct {
	Ref      string
	Distance float64
}

// ScoredDocument is a search hit resolved to its document.
type ScoredDocument struct {
	Document Document
	Distance float64
}

type QueryKind string

const (
	KindStructured QueryKind = "structured"
	KindSemantic   QueryKind = "semantic"
	KindSummary    QueryKind = "summary"
)

type QueryState string

const (
	StateAnswered QueryState = "answered"
	StateErrored  QueryState = "errored"
)

// Answer is the terminal result of a query.
type Answer struct {
	Text       string     `json:"answer"`
	References []string   `json:"references"`
	Kind       QueryKind  `json:"kind"`
	State      QueryState `json:"state"`
}
