package signatures

import (
	"errors"
	"fmt"
	"log"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ErrBadSignatureSet marks a signature set file that cannot be used at all
// (unreadable, invalid YAML, no usable entries). Callers treat this as a
// startup configuration failure.
var ErrBadSignatureSet = errors.New("bad signature set")

// Set is an operator-supplied signature set loaded from YAML.
type Set struct {
	Name       string     `yaml:"name"`
	Signatures []SetEntry `yaml:"signatures"`
}

// SetEntry is one signature definition in a set. Exactly one of Regex or
// Phrase must be set.
type SetEntry struct {
	Name        string `yaml:"name"`
	Regex       string `yaml:"regex,omitempty"`
	Phrase      string `yaml:"phrase,omitempty"`
	Category    string `yaml:"category"`
	Severity    int    `yaml:"severity"`
	Description string `yaml:"description,omitempty"`
}

// LoadSetFile reads and parses a YAML signature set. A file that cannot be
// read or parsed is a hard error; individual bad entries are reported later
// by AddSet.
func LoadSetFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrBadSignatureSet, path, err)
	}

	var set Set
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrBadSignatureSet, path, err)
	}
	if len(set.Signatures) == 0 {
		return nil, fmt.Errorf("%w: %s contains no signatures", ErrBadSignatureSet, path)
	}
	return &set, nil
}

// AddSet merges a set into the registry. Malformed entries (bad regex,
// unknown category, severity out of range) are skipped and logged rather
// than failing the whole set. Returns the number of signatures added.
func (r *Registry) AddSet(set *Set) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	added := 0
	for _, e := range set.Signatures {
		cat, ok := parseCategory(e.Category)
		if !ok {
			log.Printf("[SIGNATURES] set %q: skipping %q: unknown category %q", set.Name, e.Name, e.Category)
			continue
		}
		if e.Severity < 0 || e.Severity > 100 {
			log.Printf("[SIGNATURES] set %q: skipping %q: severity %d out of range", set.Name, e.Name, e.Severity)
			continue
		}

		switch {
		case e.Regex != "" && e.Phrase != "":
			log.Printf("[SIGNATURES] set %q: skipping %q: both regex and phrase set", set.Name, e.Name)
		case e.Regex != "":
			compiled, err := regexp.Compile(e.Regex)
			if err != nil {
				log.Printf("[SIGNATURES] set %q: skipping %q: %v", set.Name, e.Name, err)
				continue
			}
			s := &Signature{
				Name:        e.Name,
				Regex:       compiled,
				Category:    cat,
				Severity:    e.Severity,
				Description: e.Description,
			}
			r.byCategory[cat] = append(r.byCategory[cat], s)
			r.all = append(r.all, s)
			added++
		case e.Phrase != "":
			s := &Signature{
				Name:        e.Name,
				Phrase:      Normalize(e.Phrase),
				Category:    cat,
				Severity:    e.Severity,
				Description: e.Description,
			}
			r.byCategory[cat] = append(r.byCategory[cat], s)
			r.all = append(r.all, s)
			r.phrases = append(r.phrases, s)
			added++
		default:
			log.Printf("[SIGNATURES] set %q: skipping %q: neither regex nor phrase set", set.Name, e.Name)
		}
	}
	return added
}

func parseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return CategoryNone, false
}
