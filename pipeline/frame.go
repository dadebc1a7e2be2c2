package pipeline

import (
	"bytes"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

// Request describes the network request that triggered a pipeline run.
type Request struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	Method        string `json:"method"`
	Type          string `json:"type,omitempty"`
	Referer       string `json:"referer,omitempty"`
	CookieStoreID string `json:"cookie_store_id,omitempty"`
}

// Frame is the execution context of one pipeline run. Child frames created
// by control-flow operators are shallow copies with their own step list;
// they share the response cache and loop state with their parent.
type Frame struct {
	Steps       []*Step
	SiteID      string
	ExtractorID string
	SpiderID    string
	TabID       int
	Request     *Request
	Chunks      [][]byte

	// Match holds the named groups of the URL pattern that selected the
	// rule.
	Match map[string]string

	// ExportKind is the export kind used when an export step names none.
	ExportKind string

	// TestResult threads the outcome of if/elif into the following
	// elif/else steps of the same step list.
	TestResult bool

	response *responseCache
	loop     *loopState
}

func (f *Frame) child(steps []*Step) *Frame {
	c := *f
	c.Steps = steps
	return &c
}

// Fields exposes the frame metadata to URL and filename templates.
func (f *Frame) Fields() map[string]any {
	m := map[string]any{
		"site_id":      f.SiteID,
		"extractor_id": f.ExtractorID,
		"spider_id":    f.SpiderID,
		"tab_id":       f.TabID,
		"tabId":        f.TabID,
	}
	for k, v := range f.Match {
		m[k] = v
	}
	if f.Request != nil {
		m["url"] = f.Request.URL
		m["method"] = f.Request.Method
	}
	return m
}

type loopState struct {
	mu     sync.Mutex
	broken bool
}

func (l *loopState) stop() {
	l.mu.Lock()
	l.broken = true
	l.mu.Unlock()
}

func (l *loopState) done() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.broken
}

// responseCache memoizes the decoded response body for a frame tree.
type responseCache struct {
	mu      sync.Mutex
	text    *string
	json    any
	hasJSON bool
}

func (f *Frame) responseText() string {
	rc := f.response
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.decodeText(f.Chunks)
}

func (rc *responseCache) decodeText(chunks [][]byte) string {
	if rc.text == nil {
		b := bytes.Join(chunks, nil)
		b = bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))
		s := strings.ToValidUTF8(string(b), "\uFFFD")
		rc.text = &s
	}
	return *rc.text
}

func (f *Frame) responseJSON() (any, error) {
	rc := f.response
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if !rc.hasJSON {
		var v any
		if err := json.Unmarshal([]byte(rc.decodeText(f.Chunks)), &v); err != nil {
			return nil, err
		}
		rc.json, rc.hasJSON = v, true
	}
	return rc.json, nil
}

// Clone returns a copy of f that shares its response cache, so several
// pipelines fed by the same capture decode the body once.
func (f *Frame) Clone() *Frame {
	if f.response == nil {
		f.response = &responseCache{}
	}
	c := *f
	c.loop = nil
	c.TestResult = false
	return &c
}
