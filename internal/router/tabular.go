package router

import (
	"fmt"
	"strconv"
	"strings"

	"document-qa/internal/models"
)

// findTable returns the first table, in upload order, holding every column c needs.
func findTable(tables []models.NamedTable, c Classification) (models.NamedTable, bool) {
	for _, nt := range tables {
		if nt.Table.ColumnIndex(c.Column) < 0 {
			continue
		}
		if c.Op == OpFilter && nt.Table.ColumnIndex(c.ConditionColumn) < 0 {
			continue
		}
		return nt, true
	}
	return models.NamedTable{}, false
}

// evaluate runs c against t and returns the answer text.
func evaluate(t *models.Table, c Classification) (string, error) {
	switch c.Op {
	case OpSum:
		values, err := numericColumn(t, c.Column)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Sum of %s: %s", c.Column, formatNumber(sum(values))), nil
	case OpAverage:
		values, err := numericColumn(t, c.Column)
		if err != nil {
			return "", err
		}
		if len(values) == 0 {
			return "", fmt.Errorf("column %q has no numeric values", c.Column)
		}
		return fmt.Sprintf("Average of %s: %s", c.Column, formatNumber(sum(values)/float64(len(values)))), nil
	case OpFilter:
		return filter(t, c)
	default:
		return "", fmt.Errorf("unsupported operation %q", c.Op)
	}
}

func filter(t *models.Table, c Classification) (string, error) {
	col := t.Column(t.ColumnIndex(c.Column))
	cond := t.Column(t.ColumnIndex(c.ConditionColumn))

	var out []string
	for i, cell := range cond {
		v, ok, err := parseCell(cell)
		if err != nil {
			return "", fmt.Errorf("column %q: %w", c.ConditionColumn, err)
		}
		if ok && v > c.Threshold {
			out = append(out, col[i])
		}
	}
	if len(out) == 0 {
		return fmt.Sprintf("No rows where %s > %s.", c.ConditionColumn, formatNumber(c.Threshold)), nil
	}
	return strings.Join(out, "\n"), nil
}

// numericColumn parses every non-empty cell of column name. Empty cells are skipped.
func numericColumn(t *models.Table, name string) ([]float64, error) {
	var values []float64
	for _, cell := range t.Column(t.ColumnIndex(name)) {
		v, ok, err := parseCell(cell)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", name, err)
		}
		if ok {
			values = append(values, v)
		}
	}
	return values, nil
}

func parseCell(cell string) (float64, bool, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(cell, ",", ""), 64)
	if err != nil {
		return 0, false, fmt.Errorf("non-numeric value %q", cell)
	}
	return v, true, nil
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
