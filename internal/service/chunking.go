package service

import (
	"strings"
	"unicode"
)

// ChunkConfig controls how policy content is windowed before embedding.
// Content of any length is split in full.
type ChunkConfig struct {
	MaxChars int
	Overlap  int
}

// DefaultChunkConfig is a 1000-character window with 200 characters of overlap.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{MaxChars: 1000, Overlap: 200}
}

// ChunkConfigFor builds a config from a window size and overlap. Values that
// cannot form a window fall back to the defaults.
func ChunkConfigFor(size, overlap int) ChunkConfig {
	cfg := DefaultChunkConfig()
	if size > 0 {
		cfg.MaxChars = size
	}
	if overlap >= 0 && overlap < cfg.MaxChars {
		cfg.Overlap = overlap
	}
	return cfg
}

// wordSpan is a run of non-space runes, as [start, end) offsets.
type wordSpan struct {
	start, end int
}

// chunkText packs whole words into windows of at most MaxChars runes. Each
// window after the first repeats the trailing words of the previous one that
// fit in Overlap runes. Words longer than a window are split across windows.
func chunkText(text string, cfg ChunkConfig) []string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}
	if cfg.MaxChars <= 0 {
		cfg = DefaultChunkConfig()
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.MaxChars {
		cfg.Overlap = 0
	}

	runes := []rune(clean)
	if len(runes) <= cfg.MaxChars {
		return []string{clean}
	}

	words := splitWords(runes, cfg.MaxChars)
	chunks := make([]string, 0, len(runes)/(cfg.MaxChars-cfg.Overlap)+1)

	for first := 0; first < len(words); {
		last := first
		for last+1 < len(words) && words[last+1].end-words[first].start <= cfg.MaxChars {
			last++
		}
		chunks = append(chunks, string(runes[words[first].start:words[last].end]))
		if last == len(words)-1 {
			break
		}

		next := last + 1
		for next-1 > first && words[last].end-words[next-1].start <= cfg.Overlap {
			next--
		}
		first = next
	}

	return chunks
}

// splitWords returns the word spans of runes, cutting any word longer than
// limit into limit-sized pieces.
func splitWords(runes []rune, limit int) []wordSpan {
	var words []wordSpan
	for i := 0; i < len(runes); {
		if unicode.IsSpace(runes[i]) {
			i++
			continue
		}
		j := i
		for j < len(runes) && !unicode.IsSpace(runes[j]) {
			j++
		}
		for s := i; s < j; s += limit {
			words = append(words, wordSpan{start: s, end: min(s+limit, j)})
		}
		i = j
	}
	return words
}
