package chunker

import (
	"strings"
	"testing"

	"github.com/KRuddra/codefourrag/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const filler = "The actor must intend the result. "

func statuteDoc(text string, numbers ...string) types.Document {
	return types.Document{
		ID:   "data/raw/statutes/940.txt",
		Text: text,
		Metadata: types.DocumentMetadata{
			Title:          "Wisconsin Statutes Chapter 940",
			DocType:        types.DocStatute,
			StatuteNumbers: numbers,
			Dates:          []string{"2023", "2019"},
		},
	}
}

func TestNew(t *testing.T) {
	c := New()
	require.NotNil(t, c)
	assert.Equal(t, 4800, c.cfg.TargetChars())
}

func TestChunk_InvalidDocument(t *testing.T) {
	c := New()
	_, err := c.Chunk(types.Document{Text: "some text"})
	assert.ErrorIs(t, err, types.ErrMissingDocumentID)
}

func TestChunk_StatuteSections(t *testing.T) {
	body := strings.Repeat(filler, 17)
	text := "§ 940.01 First-degree intentional homicide. " + body +
		"\n\n§ 940.02 First-degree reckless homicide. " + body

	chunks, err := New().Chunk(statuteDoc(text))
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, "940.01", chunks[0].StatuteNumber)
	assert.Equal(t, "940.02", chunks[1].StatuteNumber)
	assert.Equal(t, "Section 940.01", chunks[0].HierarchyPath)
	assert.Equal(t, "Section 940.02", chunks[1].HierarchyPath)
	assert.True(t, strings.HasPrefix(chunks[1].Text, "§ 940.02"))

	for i, c := range chunks {
		assert.Equal(t, types.ChunkID("data/raw/statutes/940.txt", i), c.ChunkID)
		assert.Equal(t, types.DocStatute, c.DocType)
		assert.Equal(t, "WI", c.Jurisdiction)
		assert.Equal(t, "2023", c.Date)
		assert.Empty(t, c.CaseCitation)
		assert.Equal(t, types.EstimateTokens(c.Text), c.TokenCount)
		assert.NoError(t, c.Validate())
	}
}

func TestChunk_StatuteMergesSmallFragments(t *testing.T) {
	text := "§ 1.01 Short definition here. § 1.02 Another short definition."

	chunks, err := New().Chunk(statuteDoc(text))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Text, "\n\n§ 1.02")
	assert.Equal(t, "1.01", chunks[0].StatuteNumber)
}

func TestChunk_StatuteFallsBackToMetadataNumber(t *testing.T) {
	chunks, err := New().Chunk(statuteDoc("Whoever causes death is guilty of a Class A felony.", "940.01"))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "940.01", chunks[0].StatuteNumber)
	assert.Equal(t, "Section 1", chunks[0].HierarchyPath)
}

func TestChunk_StatuteHierarchy(t *testing.T) {
	text := "Chapter 940 Crimes against life. § 940.01 (1) Offenses. Whoever causes death."
	chunks, err := New().Chunk(statuteDoc(text))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	last := chunks[len(chunks)-1]
	assert.Equal(t, "Chapter 940 > Section 940.01 > Subsection (1)", last.HierarchyPath)
}

func TestChunk_OversizedStatuteIsSplitAtSentences(t *testing.T) {
	text := strings.Repeat("The clause applies here. ", 400) // 10000 chars

	chunks, err := New().Chunk(statuteDoc(text))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 3)

	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 4800)
		assert.True(t, strings.HasSuffix(c.Text, "."), "split should land on a sentence end")
	}

	// the second window starts before the end of the first one
	tail := chunks[0].Text[len(chunks[0].Text)-50:]
	assert.Contains(t, chunks[1].Text[:150], strings.TrimSpace(tail[len(tail)-20:]))
}

func TestChunk_UnknownTypeForceSplit(t *testing.T) {
	doc := types.Document{ID: "blob", Text: strings.Repeat("x", 10000)}

	chunks, err := New().Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Len(t, chunks[0].Text, 4800)
	assert.Len(t, chunks[1].Text, 4800)
	assert.Len(t, chunks[2].Text, 600)
	assert.Equal(t, types.DocUnknown, chunks[0].DocType)
	assert.Equal(t, "Section 2", chunks[1].HierarchyPath)
	assert.Equal(t, "Untitled", chunks[0].Title)
}

func TestChunk_CaseLaw(t *testing.T) {
	text := "State v. Smith\nFACTS\nThe officer stopped the vehicle on the highway.\n" +
		"HOLDING\nThe stop was lawful under § 346.63 of the statutes.\n"
	doc := types.Document{
		ID:       "data/raw/case_law/smith.txt",
		Text:     text,
		Metadata: types.DocumentMetadata{DocType: types.DocCaseLaw, Title: "State v. Smith"},
	}

	chunks, err := New().Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, "State v. Smith", chunks[0].CaseCitation)
	assert.Equal(t, "Section 1", chunks[0].HierarchyPath)
	assert.Empty(t, chunks[1].CaseCitation, "case citation is attached only to the first chunk")
	assert.Empty(t, chunks[2].CaseCitation)
	assert.Equal(t, "FACTS", chunks[1].HierarchyPath)
	assert.Equal(t, "HOLDING", chunks[2].HierarchyPath)
	assert.Equal(t, "346.63", chunks[2].StatuteNumber)
}

func TestChunk_PolicyNumberedHeadings(t *testing.T) {
	text := "1.0 PURPOSE\nThis policy governs body cameras under § 175.22.\n2.1 Procedure\nOfficers shall activate cameras."
	doc := types.Document{
		ID:       "data/raw/policies/madison/cameras.txt",
		Text:     text,
		Metadata: types.DocumentMetadata{DocType: types.DocPolicy, Department: "Madison"},
	}

	chunks, err := New().Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, "Section 1.0", chunks[0].HierarchyPath)
	assert.Equal(t, "Section 2.1", chunks[1].HierarchyPath)
	for _, c := range chunks {
		assert.Empty(t, c.StatuteNumber)
		assert.Empty(t, c.CaseCitation)
		assert.Equal(t, "Madison", c.Department)
	}
}

func TestChunk_TrainingCapsHeadings(t *testing.T) {
	text := "USE OF FORCE POLICY\nOfficers may use reasonable force.\nREPORTING REQUIREMENTS FOR INCIDENTS\nAll incidents must be reported."
	doc := types.Document{ID: "training.txt", Text: text, Metadata: types.DocumentMetadata{DocType: types.DocTraining}}

	chunks, err := New().Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "USE OF FORCE POLICY", chunks[0].HierarchyPath)
	assert.Equal(t, "REPORTING REQUIREMENTS FOR INCIDENTS", chunks[1].HierarchyPath)
	assert.Equal(t, types.DocTraining, chunks[0].DocType)
}

func TestChunk_DiscardsTinyChunks(t *testing.T) {
	chunks, err := New().Chunk(types.Document{ID: "tiny", Text: "tiny"})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunk_IDsStableAndUnique(t *testing.T) {
	doc := statuteDoc(strings.Repeat("The clause applies here. ", 400))
	c := New()

	first, err := c.Chunk(doc)
	require.NoError(t, err)
	second, err := c.Chunk(doc)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	seen := make(map[string]bool)
	for i := range first {
		assert.Equal(t, first[i].ChunkID, second[i].ChunkID)
		assert.False(t, seen[first[i].ChunkID], "duplicate chunk id %s", first[i].ChunkID)
		seen[first[i].ChunkID] = true
	}
}

func TestSplitAtBoundaries(t *testing.T) {
	text := "preamble § 1.01 a § 1.02 b"
	bounds := statuteSectionRules.find(text)
	require.Len(t, bounds, 2)

	got := splitAtBoundaries(text, bounds)
	assert.Equal(t, []string{"preamble", "§ 1.01 a", "§ 1.02 b"}, got)
	assert.Equal(t, []string{"no bounds"}, splitAtBoundaries("no bounds", nil))
}

func TestMergeSmall(t *testing.T) {
	big := strings.Repeat("y", 600)
	got := mergeSmall([]string{"a", "b", big, "c"}, 500)
	assert.Equal(t, []string{"a\n\nb\n\n" + big, "c"}, got)
}

func TestRuleSetCapsHeadingNeedsThreeWords(t *testing.T) {
	assert.Empty(t, ruleSet{capsHeadingRule}.find("SHORT HEADINGX\nbody text"))
	assert.Len(t, ruleSet{capsHeadingRule}.find("THREE WORD HEADING\nbody text"), 1)
}
