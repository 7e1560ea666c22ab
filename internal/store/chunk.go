package store

import (
	"strings"
	"unicode"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// chunkText splits content into pieces of at most size runes, each starting overlap
// runes before the previous one ended. A piece is cut after whitespace or sentence
// punctuation when one falls within its last tenth.
func chunkText(content string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}

	runes := []rune(strings.TrimSpace(content))
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= size {
		return []string{string(runes)}
	}

	var chunks []string
	start := 0
	for start < n {
		end := min(start+size, n)
		if end < n {
			lookBack := min(size/10, end-start)
			for i := end - 1; i >= end-lookBack && i > start; i-- {
				if isBreak(runes[i]) {
					end = i + 1
					break
				}
			}
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= n {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

func isBreak(r rune) bool {
	return unicode.IsSpace(r) || r == '.' || r == '!' || r == '?'
}
