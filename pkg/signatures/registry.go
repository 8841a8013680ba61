// Package signatures provides a centralized, compile-once lexical signature
// registry for threat detection over inter-agent messages. All regex
// signatures are compiled at first use and shared across every scan.
//
// Design principles:
// - COMPILE ONCE: regexes compiled when the registry is built, not per-message
// - CATEGORIZED: signatures organized by threat category for targeted scans
// - EXTENSIBLE: operator-supplied YAML signature sets merge at startup
package signatures

import (
	"regexp"
	"sync"
)

// Category is a threat category a signature attributes a match to.
type Category string

const (
	CategoryGoalHijack   Category = "goal_hijack"
	CategoryExfiltration Category = "exfiltration"
	CategoryPowerSeeking Category = "power_seeking"
	CategoryCollusion    Category = "collusion"
	CategorySocialEng    Category = "social_engineering"

	// CategoryNone marks signals that carry no category attribution,
	// e.g. degraded-stage placeholders. No signature registers under it.
	CategoryNone Category = "none"
)

// Categories lists every attributable threat category in weight order.
var Categories = []Category{
	CategoryExfiltration,
	CategoryGoalHijack,
	CategoryPowerSeeking,
	CategoryCollusion,
	CategorySocialEng,
}

// Signature is a single lexical detection rule. Exactly one of Regex or
// Phrase is set: regex signatures match structurally (credential formats,
// shell commands), phrase signatures match attack phrasing and additionally
// participate in fuzzy matching.
type Signature struct {
	Name        string
	Regex       *regexp.Regexp // nil for phrase signatures
	Phrase      string         // normalized form, empty for regex signatures
	Category    Category
	Severity    int // risk contribution 0-100; >=90 means unambiguous on exact hit
	Description string
}

// Registry holds all compiled signatures, organized by category.
type Registry struct {
	mu         sync.RWMutex
	byCategory map[Category][]*Signature
	all        []*Signature
	phrases    []*Signature // phrase subset, kept separate for fuzzy scans
}

var (
	globalRegistry *Registry
	initOnce       sync.Once
)

// Get returns the global signature registry, building it on first call.
func Get() *Registry {
	initOnce.Do(func() {
		globalRegistry = NewRegistry()
	})
	return globalRegistry
}

// NewRegistry builds a registry populated with the built-in corpus.
// Tests use this to get an isolated instance; production code uses Get.
func NewRegistry() *Registry {
	r := &Registry{
		byCategory: make(map[Category][]*Signature),
		all:        make([]*Signature, 0, 128),
	}

	r.registerExfiltrationSignatures()
	r.registerGoalHijackSignatures()
	r.registerPowerSeekingSignatures()
	r.registerCollusionSignatures()
	r.registerSocialEngineeringSignatures()

	return r
}

func (r *Registry) register(name, pattern string, cat Category, severity int, description string) {
	s := &Signature{
		Name:        name,
		Regex:       regexp.MustCompile(pattern),
		Category:    cat,
		Severity:    severity,
		Description: description,
	}
	r.byCategory[cat] = append(r.byCategory[cat], s)
	r.all = append(r.all, s)
}

func (r *Registry) registerPhrase(name, phrase string, cat Category, severity int, description string) {
	s := &Signature{
		Name:        name,
		Phrase:      Normalize(phrase),
		Category:    cat,
		Severity:    severity,
		Description: description,
	}
	r.byCategory[cat] = append(r.byCategory[cat], s)
	r.all = append(r.all, s)
	r.phrases = append(r.phrases, s)
}

// GetByCategory returns all signatures for a category.
// Returns an empty slice if the category has none (never nil).
func (r *Registry) GetByCategory(cat Category) []*Signature {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if sigs, ok := r.byCategory[cat]; ok {
		return sigs
	}
	return []*Signature{}
}

// MatchAll returns every signature with an exact hit. Regex signatures run
// against the raw text (credential formats are case-sensitive); phrase
// signatures run against the normalized form so homoglyph and width tricks
// do not evade them.
func (r *Registry) MatchAll(raw, normalized string) []*Signature {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []*Signature
	for _, s := range r.all {
		if s.Regex != nil {
			if s.Regex.MatchString(raw) {
				matches = append(matches, s)
			}
		} else if containsPhrase(normalized, s.Phrase) {
			matches = append(matches, s)
		}
	}
	return matches
}

// FuzzyMatch holds a phrase signature that matched approximately.
type FuzzyMatch struct {
	Signature  *Signature
	Similarity float64 // token containment in [0,1]
}

// FuzzyMatches scans phrase signatures for approximate containment in text,
// returning those at or above threshold. Exact hits are excluded; MatchAll
// already reports them at full severity.
func (r *Registry) FuzzyMatches(text string, threshold float64) []FuzzyMatch {
	r.mu.RLock()
	defer r.mu.RUnlock()

	textTokens := tokenSet(text)
	var out []FuzzyMatch
	for _, s := range r.phrases {
		if containsPhrase(text, s.Phrase) {
			continue
		}
		sim := containment(s.Phrase, textTokens)
		if sim >= threshold {
			out = append(out, FuzzyMatch{Signature: s, Similarity: sim})
		}
	}
	return out
}

// TotalSignatures returns the count of registered signatures.
func (r *Registry) TotalSignatures() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.all)
}

// CategoryCount returns the number of signatures in a category.
func (r *Registry) CategoryCount(cat Category) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCategory[cat])
}
