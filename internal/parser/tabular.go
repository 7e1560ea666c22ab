package parser

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"

	"document-qa/internal/models"
)

// parseXLSX reads every sheet as text; the first sheet becomes the table. Workbooks
// excelize refuses are retried with tealeg/xlsx.
func parseXLSX(data []byte) (string, *models.Table, error) {
	sheets, err := readExcelize(data)
	if err != nil {
		log.Debug().Err(err).Msg("excelize failed, retrying with tealeg/xlsx")
		var fallbackErr error
		sheets, fallbackErr = readTealeg(data)
		if fallbackErr != nil {
			return "", nil, fmt.Errorf("xlsx extraction: %w", err)
		}
	}
	if len(sheets) == 0 {
		return "", nil, nil
	}

	var text strings.Builder
	for _, s := range sheets {
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", s.name))
		text.WriteString(renderRows(s.rows))
	}
	return text.String(), tableFromRows(sheets[0].rows), nil
}

type sheet struct {
	name string
	rows [][]string
}

func readExcelize(data []byte) ([]sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var sheets []sheet
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			continue
		}
		sheets = append(sheets, sheet{name: name, rows: rows})
	}
	return sheets, nil
}

func readTealeg(data []byte) ([]sheet, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, err
	}
	var sheets []sheet
	for _, s := range f.Sheets {
		var rows [][]string
		for _, row := range s.Rows {
			cells := make([]string, len(row.Cells))
			for i, cell := range row.Cells {
				cells[i] = cell.String()
			}
			rows = append(rows, cells)
		}
		sheets = append(sheets, sheet{name: s.Name, rows: rows})
	}
	return sheets, nil
}

func parseCSV(data []byte) (string, *models.Table, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return "", nil, fmt.Errorf("csv extraction: %w", err)
	}
	if len(rows) == 0 {
		return "", nil, nil
	}
	return renderRows(rows), tableFromRows(rows), nil
}

// parseJSON keeps the indented document as text and flattens it into a table: an
// array of objects gives one row per object, a single object gives one row, nested
// objects become dotted column names.
func parseJSON(data []byte) (string, *models.Table, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return "", nil, fmt.Errorf("json extraction: %w", err)
	}
	pretty, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", nil, fmt.Errorf("json extraction: %w", err)
	}

	var records []map[string]string
	switch v := doc.(type) {
	case []interface{}:
		for _, item := range v {
			if obj, ok := item.(map[string]interface{}); ok {
				records = append(records, flatten("", obj, map[string]string{}))
			}
		}
	case map[string]interface{}:
		records = append(records, flatten("", v, map[string]string{}))
	}
	return string(pretty), tableFromRecords(records), nil
}

func flatten(prefix string, obj map[string]interface{}, out map[string]string) map[string]string {
	for k, v := range obj {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]interface{}:
			flatten(key, val, out)
		case nil:
			out[key] = ""
		case string:
			out[key] = val
		case json.Number:
			out[key] = val.String()
		case bool:
			out[key] = strconv.FormatBool(val)
		default:
			b, _ := json.Marshal(val)
			out[key] = string(b)
		}
	}
	return out
}

// tableFromRecords orders columns by first appearance, keys of one record sorted.
func tableFromRecords(records []map[string]string) *models.Table {
	if len(records) == 0 {
		return nil
	}
	var columns []string
	seen := map[string]struct{}{}
	for _, rec := range records {
		keys := make([]string, 0, len(rec))
		for k := range rec {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				columns = append(columns, k)
			}
		}
	}
	t := &models.Table{Columns: columns}
	for _, rec := range records {
		row := make([]string, len(columns))
		for i, c := range columns {
			row[i] = rec[c]
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// tableFromRows treats the first row as the header.
func tableFromRows(rows [][]string) *models.Table {
	if len(rows) == 0 {
		return nil
	}
	t := &models.Table{Columns: make([]string, len(rows[0]))}
	for i, c := range rows[0] {
		c = strings.TrimSpace(c)
		if c == "" {
			c = fmt.Sprintf("Unnamed: %d", i)
		}
		t.Columns[i] = c
	}
	for _, row := range rows[1:] {
		cells := make([]string, len(t.Columns))
		copy(cells, row)
		t.Rows = append(t.Rows, cells)
	}
	return t
}

func renderRows(rows [][]string) string {
	var text strings.Builder
	for _, row := range rows {
		text.WriteString(strings.Join(row, "\t"))
		text.WriteString("\n")
	}
	return text.String()
}
