package engine

import (
	"fmt"
	"sync"

	"github.com/use-agent/webexporter/pipeline"
)

// Rule binds an extractor's steps to the URLs it handles.
type Rule struct {
	SiteID      string
	ExtractorID string
	URLPattern  string
	Steps       []*pipeline.Step

	once     sync.Once
	matcher  *Matcher
	matchErr error
}

// Matcher returns the compiled URL pattern, compiling it on first use.
func (r *Rule) Matcher() (*Matcher, error) {
	r.once.Do(func() {
		r.matcher, r.matchErr = CompileURLPattern(r.URLPattern)
	})
	return r.matcher, r.matchErr
}

func (r *Rule) String() string {
	return r.SiteID + "/" + r.ExtractorID
}

// Match is a rule selected for one URL along with its pattern groups.
type Match struct {
	Rule   *Rule
	Groups map[string]string
}

// Registry holds the rules known to a dispatcher. It is filled at startup
// and read concurrently afterwards.
type Registry struct {
	mu    sync.RWMutex
	rules []*Rule
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers r after checking that its pattern compiles.
func (reg *Registry) Add(r *Rule) error {
	if _, err := r.Matcher(); err != nil {
		return fmt.Errorf("engine: rule %s: %w", r, err)
	}
	reg.mu.Lock()
	reg.rules = append(reg.rules, r)
	reg.mu.Unlock()
	return nil
}

// Rules returns the registered rules in registration order.
func (reg *Registry) Rules() []*Rule {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return append([]*Rule(nil), reg.rules...)
}

// Reset removes every rule.
func (reg *Registry) Reset() {
	reg.mu.Lock()
	reg.rules = nil
	reg.mu.Unlock()
}

// Match returns the rules whose pattern matches rawURL, in registration
// order.
func (reg *Registry) Match(rawURL string) []Match {
	var out []Match
	for _, r := range reg.Rules() {
		m, err := r.Matcher()
		if err != nil {
			continue
		}
		if groups, ok := m.Match(rawURL); ok {
			out = append(out, Match{Rule: r, Groups: groups})
		}
	}
	return out
}

// Find returns the rule of a site's extractor.
func (reg *Registry) Find(siteID, extractorID string) (*Rule, bool) {
	for _, r := range reg.Rules() {
		if r.SiteID == siteID && r.ExtractorID == extractorID {
			return r, true
		}
	}
	return nil, false
}
