package pipeline

import (
	"sort"
	"unicode"
)

// ScriptCount is one candidate writing system with its letter count.
type ScriptCount struct {
	Script string
	Count  int
}

// ScriptCandidates ranks the writing systems present in text by letter
// count, highest first. Ties break alphabetically so the order is stable.
func ScriptCandidates(text string) []ScriptCount {
	counts := map[string]int{}
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		counts[scriptOf(r)]++
	}

	out := make([]ScriptCount, 0, len(counts))
	for script, n := range counts {
		out = append(out, ScriptCount{Script: script, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Script < out[j].Script
	})
	return out
}

// DetectScript classifies the dominant writing system of extracted text;
// "unknown" when the text has no letters at all.
func DetectScript(text string) string {
	cands := ScriptCandidates(text)
	if len(cands) == 0 {
		return "unknown"
	}
	return cands[0].Script
}

func scriptOf(r rune) string {
	switch {
	case unicode.Is(unicode.Latin, r):
		return "latin"
	case unicode.Is(unicode.Cyrillic, r):
		return "cyrillic"
	case unicode.Is(unicode.Greek, r):
		return "greek"
	case unicode.Is(unicode.Arabic, r):
		return "arabic"
	case unicode.Is(unicode.Hebrew, r):
		return "hebrew"
	case unicode.Is(unicode.Han, r):
		return "han"
	case unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r):
		return "japanese"
	case unicode.Is(unicode.Hangul, r):
		return "hangul"
	case unicode.Is(unicode.Devanagari, r):
		return "devanagari"
	case unicode.Is(unicode.Thai, r):
		return "thai"
	default:
		return "other"
	}
}
