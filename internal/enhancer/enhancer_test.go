package enhancer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnhance(t *testing.T) {
	e := New(nil, nil)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{
			name:  "single word abbreviation",
			query: "What is OWI?",
			want:  []string{"what is operating while intoxicated?"},
		},
		{
			name:  "statute numbers are protected",
			query: "Is § 940.01 homicide?",
			want:  []string{"is § 940.01 murder?", "is § 940.01 manslaughter?"},
		},
		{
			name:  "spelling correction",
			query: "homocide penalties",
			want:  []string{"homicide penalties"},
		},
		{
			name:  "multi-word abbreviation and phrase synonym",
			query: "what is a terry stop",
			want:  []string{"what is a investigatory detention", "what is a stop and frisk"},
		},
		{
			name:  "no enhancement",
			query: "body camera retention",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Enhance(tt.query)
			assert.Equal(t, tt.query, got.Original)
			assert.Equal(t, tt.want, got.Variants)
		})
	}
}

func TestEnhance_CapsVariants(t *testing.T) {
	got := New(nil, nil).Enhance("owi pc homicide")
	require.Len(t, got.Variants, MaxVariants)
	assert.Equal(t, "operating while intoxicated pc homicide", got.Variants[0])
	assert.Equal(t, "owi probable cause homicide", got.Variants[1])
	assert.Equal(t, "owi pc murder", got.Variants[2])
}

func TestEnhance_SectionWordRestored(t *testing.T) {
	got := New(nil, nil).Enhance("Section 346.63(1)(a) OWI")
	require.NotEmpty(t, got.Variants)
	assert.Equal(t, "Section 346.63(1)(a) operating while intoxicated", got.Variants[0])
}

func TestEnhance_EmptyQuery(t *testing.T) {
	got := New(nil, nil).Enhance("   ")
	assert.Empty(t, got.Variants)
	assert.Equal(t, []string{"   "}, got.All())
}

func TestEnhance_AllIncludesOriginalFirst(t *testing.T) {
	got := New(nil, nil).Enhance("What is OWI?")
	all := got.All()
	require.Len(t, all, 2)
	assert.Equal(t, "What is OWI?", all[0])
	assert.NotEmpty(t, got.Log)
}

func TestLoadDictionary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dict.yaml")
	content := `
abbreviations:
  CCW: ["carrying a concealed weapon"]
synonyms:
  taser: ["conducted energy device"]
corrections:
  warant: Warrant
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	dict, err := LoadDictionary(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"carrying a concealed weapon"}, dict.Abbreviations["ccw"])
	assert.Equal(t, "warrant", dict.Corrections["warant"])
	assert.Contains(t, dict.Abbreviations, "owi", "built-in entries are kept")

	e := New(dict, nil)
	assert.Equal(t, []string{"carrying a concealed weapon permit"}, e.Enhance("CCW permit").Variants)
	assert.Equal(t, []string{"conducted energy device use"}, e.Enhance("taser use").Variants)
	assert.Equal(t, []string{"search warrant"}, e.Enhance("search warant").Variants)
}

func TestLoadDictionary_Errors(t *testing.T) {
	_, err := LoadDictionary(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("abbreviations: [unclosed"), 0o644))
	_, err = LoadDictionary(path)
	assert.Error(t, err)
}
