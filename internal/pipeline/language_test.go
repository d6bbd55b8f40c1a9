package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectScript(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"latin", "The mitochondria is the powerhouse of the cell", "latin"},
		{"cyrillic", "Квантовая запутанность и её применения", "cyrillic"},
		{"greek", "Η κβαντική διεμπλοκή", "greek"},
		{"arabic", "التشابك الكمي وتطبيقاته", "arabic"},
		{"hebrew", "שזירה קוונטית ויישומיה", "hebrew"},
		{"han", "量子纠缠及其应用研究", "han"},
		{"japanese kana", "りょうしもつれ について の けんきゅう", "japanese"},
		{"hangul", "양자 얽힘과 그 응용", "hangul"},
		{"devanagari", "क्वांटम उलझाव और अनुप्रयोग", "devanagari"},
		{"thai", "ความพัวพันเชิงควอนตัม", "thai"},
		{"no letters", "1234 !!! 5678", "unknown"},
		{"empty", "", "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectScript(tc.text))
		})
	}
}

func TestScriptCandidatesRanksByCount(t *testing.T) {
	// 6 latin letters, 5 cyrillic, 2 greek.
	cands := ScriptCandidates("abcdef пятьб αβ")
	require.Len(t, cands, 3)
	assert.Equal(t, ScriptCount{Script: "latin", Count: 6}, cands[0])
	assert.Equal(t, ScriptCount{Script: "cyrillic", Count: 5}, cands[1])
	assert.Equal(t, ScriptCount{Script: "greek", Count: 2}, cands[2])
}

func TestScriptCandidatesTieBreaksAlphabetically(t *testing.T) {
	cands := ScriptCandidates("ab αβ")
	require.Len(t, cands, 2)
	assert.Equal(t, "greek", cands[0].Script)
	assert.Equal(t, "latin", cands[1].Script)
}

func TestScriptCandidatesEmpty(t *testing.T) {
	assert.Empty(t, ScriptCandidates("1234 !!!"))
}

func TestDetectScriptMajorityWins(t *testing.T) {
	// A mostly-English abstract with a few transliterated names stays latin.
	text := "Study of Tokyo datasets 東京 with mostly English prose throughout the abstract"
	assert.Equal(t, "latin", DetectScript(text))
}
