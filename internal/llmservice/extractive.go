package llmservice

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	fallbackAnswerRunes     = 500
	defaultSummarySentences = 5
)

// Extractive answers without a model: Generate returns the context sentence that
// shares the most terms with the query, Summarize keeps the sentences with the most
// frequent terms in their original order.
type Extractive struct {
	maxSentences int
	tokenPattern *regexp.Regexp
	sentencePat  *regexp.Regexp
	stopwords    map[string]struct{}
}

func NewExtractive(maxSentences int) *Extractive {
	if maxSentences <= 0 {
		maxSentences = defaultSummarySentences
	}
	return &Extractive{
		maxSentences: maxSentences,
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’]\p{L}+)*`),
		sentencePat:  regexp.MustCompile(`[^.!?\n]+[.!?]*`),
		stopwords:    defaultStopwords(),
	}
}

func (e *Extractive) Generate(_ context.Context, docContext, query string) (string, error) {
	terms := make(map[string]struct{})
	for _, tok := range e.terms(query) {
		terms[tok] = struct{}{}
	}

	best, bestScore := "", 0
	for _, sent := range e.sentences(docContext) {
		seen := make(map[string]struct{})
		score := 0
		for _, tok := range e.terms(sent) {
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			if _, ok := terms[tok]; ok {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = sent, score
		}
	}
	if bestScore > 0 {
		return best, nil
	}
	return truncate(strings.TrimSpace(docContext), fallbackAnswerRunes), nil
}

func (e *Extractive) Summarize(_ context.Context, docContext string) (string, error) {
	sentences := e.sentences(docContext)
	if len(sentences) == 0 {
		return strings.TrimSpace(docContext), nil
	}

	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range e.terms(sent) {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}

	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, sent := range sentences {
		toks := e.terms(sent)
		s := 0.0
		for _, tok := range toks {
			s += freq[tok] / maxF
		}
		if len(toks) > 0 {
			s /= math.Sqrt(float64(len(toks)))
		}
		scores[i] = pair{i, s}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	n := min(e.maxSentences, len(scores))
	selected := make([]int, n)
	for i := range selected {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)

	out := make([]string, n)
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " "), nil
}

func (e *Extractive) sentences(text string) []string {
	var out []string
	for _, s := range e.sentencePat.FindAllString(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// terms are the lower-cased tokens of text without stopwords.
func (e *Extractive) terms(text string) []string {
	var out []string
	for _, tok := range e.tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if _, ok := e.stopwords[tok]; !ok {
			out = append(out, tok)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "whom", "when", "where", "why", "how", "do", "does", "did", "tell", "me",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

var _ Generator = (*Extractive)(nil)
