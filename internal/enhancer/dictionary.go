package enhancer

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Dictionary holds the abbreviation, synonym and spelling tables used to
// build query variants. Keys are lowercase; a key may contain spaces.
type Dictionary struct {
	Abbreviations map[string][]string `yaml:"abbreviations"`
	Synonyms      map[string][]string `yaml:"synonyms"`
	Corrections   map[string]string   `yaml:"corrections"`
}

// DefaultDictionary returns the built-in law enforcement dictionary
func DefaultDictionary() *Dictionary {
	return &Dictionary{
		Abbreviations: map[string][]string{
			// impaired driving
			"owi": {"operating while intoxicated", "dui", "driving under the influence"},
			"dui": {"driving under the influence", "owi", "operating while intoxicated"},
			"dwi": {"driving while intoxicated", "dui", "owi"},

			// agencies and ranks
			"pd":   {"public defender"},
			"so":   {"sheriff's office", "sheriff office"},
			"dept": {"department"},
			"det":  {"detective", "detention"},
			"ofc":  {"officer"},
			"lt":   {"lieutenant"},
			"sgt":  {"sergeant"},
			"cpt":  {"captain"},

			// legal shorthand
			"pc":  {"probable cause"},
			"rs":  {"reasonable suspicion"},
			"sw":  {"search warrant"},
			"arw": {"arrest warrant"},
			"sub": {"subpoena"},

			// courts
			"da":    {"district attorney", "district attorney's office"},
			"ada":   {"assistant district attorney"},
			"judge": {"judge", "magistrate"},

			// Wisconsin
			"wis":       {"wisconsin"},
			"wi":        {"wisconsin"},
			"stat":      {"statute", "statutes"},
			"wis. stat": {"wisconsin statute", "wisconsin statutes"},
			"ws":        {"wisconsin statute", "wisconsin statutes"},

			"terry stop":    {"investigatory detention", "stop and frisk", "temporary detention"},
			"terry v. ohio": {"terry stop", "investigatory detention"},
		},
		Synonyms: map[string][]string{
			"terry stop":              {"investigatory detention", "stop and frisk", "temporary detention"},
			"investigatory detention": {"terry stop", "stop and frisk", "temporary detention"},
			"stop and frisk":          {"terry stop", "investigatory detention", "temporary detention"},

			"search warrant":       {"warrant", "search authorization"},
			"probable cause":       {"reasonable belief", "sufficient evidence"},
			"reasonable suspicion": {"articulable suspicion", "specific suspicion"},

			"miranda warning": {"miranda rights", "miranda advisement", "rights advisement"},
			"miranda rights":  {"miranda warning", "miranda advisement", "rights advisement"},

			"traffic stop": {"vehicle stop", "traffic detention"},
			"vehicle stop": {"traffic stop", "traffic detention"},

			"homicide": {"murder", "manslaughter", "killing"},
			"assault":  {"battery", "physical harm"},
			"theft":    {"larceny", "stealing"},
			"burglary": {"breaking and entering", "unlawful entry"},

			"arraignment":  {"initial appearance", "charging"},
			"plea bargain": {"plea agreement", "plea deal"},
			"sentencing":   {"sentencing hearing", "imposition of sentence"},

			"due process":      {"procedural fairness", "constitutional process"},
			"equal protection": {"equal treatment", "non-discrimination"},
		},
		Corrections: map[string]string{
			"terri stop": "terry stop",
			"mirranda":   "miranda",
			"probabl":    "probable",
			"arangement": "arraignment",
			"homocide":   "homicide",
			"manslauter": "manslaughter",
		},
	}
}

// LoadDictionary reads a YAML dictionary and overlays it on the built-in
// tables. Entries in the file replace built-in entries with the same key.
func LoadDictionary(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}

	var overlay Dictionary
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parse dictionary %s: %w", path, err)
	}

	dict := DefaultDictionary()
	dict.Merge(&overlay)
	return dict, nil
}

// Merge copies every entry of other into d, lowercasing keys
func (d *Dictionary) Merge(other *Dictionary) {
	if other == nil {
		return
	}
	if d.Abbreviations == nil {
		d.Abbreviations = make(map[string][]string)
	}
	if d.Synonyms == nil {
		d.Synonyms = make(map[string][]string)
	}
	if d.Corrections == nil {
		d.Corrections = make(map[string]string)
	}
	for k, v := range other.Abbreviations {
		d.Abbreviations[normalizeKey(k)] = v
	}
	for k, v := range other.Synonyms {
		d.Synonyms[normalizeKey(k)] = v
	}
	for k, v := range other.Corrections {
		d.Corrections[normalizeKey(k)] = strings.ToLower(v)
	}
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

// phrases returns the multi-word keys of table in sorted order
func phrases[V any](table map[string]V) []string {
	var out []string
	for k := range table {
		if strings.Contains(k, " ") {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
