package router

import (
	"regexp"
	"strconv"
	"strings"

	"document-qa/internal/models"
)

type Op string

const (
	OpSum     Op = "sum"
	OpAverage Op = "average"
	OpFilter  Op = "filter"
)

// Classification is derived per query and never stored.
type Classification struct {
	Kind            models.QueryKind
	Op              Op
	Column          string
	ConditionColumn string
	Threshold       float64
}

type Classifier interface {
	Classify(query string) Classification
}

var triggers = []string{"sum", "average", "total", "filter"}

type pattern struct {
	op Op
	re *regexp.Regexp
}

// column names may use any letters or digits, not only ASCII
const columnPattern = `([\p{L}\p{N}_]+)`

var patterns = []pattern{
	{OpSum, regexp.MustCompile(`sum of ` + columnPattern)},
	{OpSum, regexp.MustCompile(`total of ` + columnPattern)},
	{OpAverage, regexp.MustCompile(`average of ` + columnPattern)},
	{OpFilter, regexp.MustCompile(`filter ` + columnPattern + ` where ` + columnPattern + ` > (\d+)`)},
}

// PatternClassifier marks a query structured when it contains a trigger word and
// matches one of the aggregate or filter patterns. Matching is done on the
// lower-cased query.
type PatternClassifier struct{}

func (PatternClassifier) Classify(query string) Classification {
	q := strings.ToLower(query)
	semantic := Classification{Kind: models.KindSemantic}
	if !hasTrigger(q) {
		return semantic
	}
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(q)
		if m == nil {
			continue
		}
		c := Classification{Kind: models.KindStructured, Op: p.op, Column: m[1]}
		if p.op == OpFilter {
			threshold, err := strconv.ParseFloat(m[3], 64)
			if err != nil {
				return semantic
			}
			c.ConditionColumn = m[2]
			c.Threshold = threshold
		}
		return c
	}
	return semantic
}

func hasTrigger(q string) bool {
	for _, t := range triggers {
		if strings.Contains(q, t) {
			return true
		}
	}
	return false
}
