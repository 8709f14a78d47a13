package formatter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KRuddra/codefourrag/internal/safety"
	"github.com/KRuddra/codefourrag/pkg/types"
)

func testPacket() *types.ContextPacket {
	p := types.NewContextPacket()
	p.Add(types.Chunk{ChunkID: "aaaa1111_chunk_0", DocType: types.DocStatute, Text: "§ 940.01 text", StatuteNumber: "940.01"}, 0.9, types.SourcePrimary)
	p.Add(types.Chunk{ChunkID: "bbbb2222_chunk_0", DocType: types.DocCaseLaw, Text: "State v. Smith"}, 0.7, types.SourcePrimary)
	p.Add(types.Chunk{ChunkID: "cccc3333_chunk_0", DocType: types.DocPolicy, Text: "Policy 2.1"}, 0.6, types.SourcePrimary)
	p.Add(types.Chunk{ChunkID: "dddd4444_chunk_0", DocType: types.DocStatute, Text: "§ 940.02 text"}, 0.5, types.SourceCrossref)
	return p
}

func TestExtractCitations(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"bracketed", "Homicide is defined [Source src_000_aaaa1111_chunk_0].", []string{"src_000_aaaa1111_chunk_0"}},
		{"bare and case-insensitive", "see SOURCE src_001_bbbb2222_chunk_0 and source src_002_x", []string{"src_001_bbbb2222_chunk_0", "src_002_x"}},
		{"order of first appearance, deduplicated", "[Source src_003_d] then [Source src_000_a] and [source src_003_d]", []string{"src_003_d", "src_000_a"}},
		{"none", "no citations at all", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCitations(tt.text))
		})
	}
}

func TestExtractCitationsRecoversRenderedPacket(t *testing.T) {
	p := testPacket()
	got := ExtractCitations(p.Text())

	want := make([]string, 0, p.Len())
	for _, src := range p.Sources {
		want = append(want, src.SourceID)
	}
	assert.Equal(t, want, got)
}

func TestParseAnswer(t *testing.T) {
	t.Run("json object", func(t *testing.T) {
		a := ParseAnswer(`{"answer": "Homicide {first degree} is a Class A felony.", "citations": ["src_000_a"], "confidence": "high"}`)
		assert.Equal(t, "Homicide {first degree} is a Class A felony.", a.Text)
		assert.Equal(t, []string{"src_000_a"}, a.Citations)
		assert.Equal(t, "high", a.Confidence)
	})

	t.Run("json wrapped in prose", func(t *testing.T) {
		a := ParseAnswer("Here is the answer:\n```json\n{\"answer\": \"It applies.\"}\n```")
		assert.Equal(t, "It applies.", a.Text)
		assert.Empty(t, a.Citations)
		assert.Equal(t, DefaultAnswerConfidence, a.Confidence)
	})

	t.Run("empty answer falls back to raw text", func(t *testing.T) {
		raw := `{"answer": "", "citations": []}`
		assert.Equal(t, raw, ParseAnswer(raw).Text)
	})

	t.Run("truncated json uses answer field", func(t *testing.T) {
		a := ParseAnswer(`{"answer": "He said \"stop\"\nthen left", "citations": [`)
		assert.Equal(t, "He said \"stop\"\nthen left", a.Text)
		assert.Empty(t, a.Citations)
	})

	t.Run("plain text", func(t *testing.T) {
		a := ParseAnswer("  \"A Terry stop requires reasonable suspicion.\"  ")
		assert.Equal(t, "A Terry stop requires reasonable suspicion.", a.Text)
		assert.Equal(t, DefaultAnswerConfidence, a.Confidence)
	})
}

func TestCleanAnswer(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"citation markers", "the statute applies [Source src_000_abc]  here", "The statute applies here."},
		{"json remnants", `{"answer": "it is lawful", "citations": ["x"]}`, "It is lawful."},
		{"whitespace collapsed", "Line one.\n\n  Line two!", "Line one. Line two!"},
		{"question kept", "is it lawful?", "Is it lawful?"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanAnswer(tt.in))
		})
	}
}

func TestFormat(t *testing.T) {
	p := testPacket()
	raw := `{"answer": "Policy governs this [Source src_002_cccc3333_chunk_0]", "citations": []}`

	resp := Format(raw, p, 0.72, []safety.Flag{safety.FlagLowConfidence}, "conv-1")
	require.NotNil(t, resp)

	assert.Equal(t, "Policy governs this.\n\n"+safety.Disclaimer, resp.Response)
	assert.Equal(t, 0.72, resp.Confidence)
	assert.Equal(t, []string{"LOW_CONFIDENCE"}, resp.Flags)
	assert.Equal(t, "conv-1", resp.ConversationID)

	require.Len(t, resp.Sources, MaxSources)
	ids := []string{resp.Sources[0].Metadata.SourceID, resp.Sources[1].Metadata.SourceID, resp.Sources[2].Metadata.SourceID}
	assert.Equal(t, []string{"src_000_aaaa1111_chunk_0", "src_001_bbbb2222_chunk_0", "src_002_cccc3333_chunk_0"}, ids)
	assert.Equal(t, "940.01", resp.Sources[0].Metadata.StatuteNumber)
}

func TestFormatCitedLowScoreSourceIsKept(t *testing.T) {
	p := testPacket()
	resp := Format("See [Source src_003_dddd4444_chunk_0].", p, 0.5, nil, "c")

	require.Len(t, resp.Sources, MaxSources)
	assert.Equal(t, "src_003_dddd4444_chunk_0", resp.Sources[2].Metadata.SourceID)
	assert.Equal(t, 0.5, resp.Sources[2].Score)
	assert.Equal(t, "src_000_aaaa1111_chunk_0", resp.Sources[0].Metadata.SourceID)
}

func TestFormatUseOfForceNotice(t *testing.T) {
	flags := []safety.Flag{safety.FlagUseOfForceCaution}
	resp := Format("Officers may use a taser when policy allows.", testPacket(), 0.8, flags, "c")

	assert.True(t, strings.HasSuffix(resp.Response, safety.Disclaimer+"\n\n"+safety.UseOfForceNotice))
	assert.Equal(t, []string{"USE_OF_FORCE_CAUTION"}, resp.Flags)
}

func TestSelectSourcesEmptyPacket(t *testing.T) {
	assert.Empty(t, SelectSources(nil, []string{"src_000_a"}))
	assert.Empty(t, SelectSources(types.NewContextPacket(), nil))
}

func TestExcerpt(t *testing.T) {
	short := strings.Repeat("a", ExcerptChars)
	assert.Equal(t, short, Excerpt(short))

	long := strings.Repeat("§", ExcerptChars+10)
	got := Excerpt(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, ExcerptChars+3, len([]rune(got)))
}
