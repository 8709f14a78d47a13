package legalref

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindStatuteNumbers(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"section symbol with subsections", "What is § 939.50(3)(a)?", []string{"939.50(3)(a)"}},
		{"no space after symbol", "§940.01 applies", []string{"940.01"}},
		{"section word", "see section 940.02 for details", []string{"940.02"}},
		{"wis stat", "Wis. Stat. 346.63 covers OWI", []string{"346.63"}},
		{"duplicates collapse", "§ 940.01 and Section 940.01", []string{"940.01"}},
		{"none", "what is a terry stop", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FindStatuteNumbers(tt.text))
		})
	}
}

func TestFirstStatuteNumber(t *testing.T) {
	assert.Equal(t, "940.01", FirstStatuteNumber("Section 940.02 then § 940.01"))
	assert.Equal(t, "940.02", FirstStatuteNumber("Sec. 940.02 only"))
	assert.Equal(t, "", FirstStatuteNumber("Wis. Stat. 346.63"))
}

func TestFindCaseCitations(t *testing.T) {
	got := FindCaseCitations("Compare State v. Smith, 2023 with Terry v. Ohio.")
	assert.Equal(t, []string{"State v. Smith", "Terry v. Ohio"}, got)
	assert.Equal(t, "State v Jones", FirstCaseCitation("In State v Jones the court held"))
	assert.Equal(t, "", FirstCaseCitation("no citation here"))
}

func TestMatches(t *testing.T) {
	assert.True(t, StatuteMatches("940.01(1)", "940.01"))
	assert.True(t, StatuteMatches("940.01", "940.01(1)"))
	assert.False(t, StatuteMatches("940.02", "940.01"))
	assert.False(t, StatuteMatches("", "940.01"))
	assert.True(t, CaseMatches("state v. smith", "State v. Smith"))
}
