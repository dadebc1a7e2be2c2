package scraper

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"github.com/use-agent/webexporter/engine"
)

// chunkSize is the size of the chunks a loaded body is handed out in.
const chunkSize = 64 << 10

// configToProto maps human-readable config strings to Rod protocol resource types.
var configToProto = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
}

// captured are the resource types offered to the handler; everything else
// passes straight through.
var captured = map[proto.NetworkResourceType]struct{}{
	proto.NetworkResourceTypeDocument: {},
	proto.NetworkResourceTypeXHR:      {},
	proto.NetworkResourceTypeFetch:    {},
}

// adDomains is a set of well-known ad and tracking domains to block
// when BlockAds is enabled.
var adDomains = map[string]struct{}{
	"doubleclick.net":       {},
	"googlesyndication.com": {},
	"googleadservices.com":  {},
	"google-analytics.com":  {},
	"googletagmanager.com":  {},
	"adnxs.com":             {},
	"adsrvr.org":            {},
	"amazon-adsystem.com":   {},
	"criteo.com":            {},
	"outbrain.com":          {},
	"taboola.com":           {},
	"moatads.com":           {},
	"pubmatic.com":          {},
	"rubiconproject.com":    {},
	"scorecardresearch.com": {},
	"quantserve.com":        {},
	"hotjar.com":            {},
	"chartbeat.com":         {},
	"openx.net":             {},
	"demdex.net":            {},
}

// isAdDomain checks if a hostname (or any parent domain) is in the ad blocklist.
func isAdDomain(host string) bool {
	host = strings.ToLower(host)
	for {
		if _, ok := adDomains[host]; ok {
			return true
		}
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			return false
		}
		host = host[idx+1:]
	}
}

// CaptureOptions controls what a Capture lets through.
type CaptureOptions struct {
	BlockAds   bool
	BlockTypes []string
	// Timeout bounds the re-issued request that loads a matched body.
	Timeout time.Duration
}

// Capture intercepts the requests of every tab of a Browser and offers
// them to the attached handler as exchanges. It implements engine.Source.
type Capture struct {
	browser  *Browser
	client   *http.Client
	blockAds bool
	blocked  map[proto.NetworkResourceType]struct{}

	mu      sync.Mutex
	handler engine.Handler
	routers map[int]*rod.HijackRouter
}

// NewCapture hooks b so that tabs opened later are intercepted too.
func NewCapture(b *Browser, opts CaptureOptions) *Capture {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	blocked := make(map[proto.NetworkResourceType]struct{}, len(opts.BlockTypes))
	for _, name := range opts.BlockTypes {
		if rt, ok := configToProto[name]; ok {
			blocked[rt] = struct{}{}
		}
	}
	c := &Capture{
		browser:  b,
		client:   &http.Client{Timeout: opts.Timeout},
		blockAds: opts.BlockAds,
		blocked:  blocked,
		routers:  make(map[int]*rod.HijackRouter),
	}
	b.setOnOpen(c.hook)
	return c
}

// Attach sets the handler and starts intercepting the open tabs.
func (c *Capture) Attach(h engine.Handler) error {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
	for id, page := range c.browser.pages() {
		c.hook(id, page)
	}
	return nil
}

// Detach stops every router. Tabs keep loading, unobserved.
func (c *Capture) Detach() error {
	c.mu.Lock()
	c.handler = nil
	routers := c.routers
	c.routers = make(map[int]*rod.HijackRouter)
	c.mu.Unlock()

	for id, r := range routers {
		if err := r.Stop(); err != nil {
			slog.Debug("stop hijack router", "tab", id, "error", err)
		}
	}
	return nil
}

func (c *Capture) current() engine.Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler
}

// hook installs a router on page unless it has one or no handler is
// attached.
func (c *Capture) hook(id int, page *rod.Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handler == nil {
		return
	}
	if _, ok := c.routers[id]; ok {
		return
	}
	router := page.HijackRequests()
	_ = router.Add("*", "", func(h *rod.Hijack) { c.intercept(id, h) })
	// router.Run() blocks until router.Stop().
	go router.Run()
	c.routers[id] = router
}

func (c *Capture) intercept(tabID int, h *rod.Hijack) {
	if _, ok := c.blocked[h.Request.Type()]; ok {
		h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		return
	}
	u := h.Request.URL()
	if c.blockAds && isAdDomain(u.Hostname()) {
		h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		return
	}

	handler := c.current()
	if _, ok := captured[h.Request.Type()]; !ok || handler == nil {
		h.ContinueRequest(&proto.FetchContinueRequest{})
		return
	}

	opened, loaded := false, false
	handler(&engine.Exchange{
		ID:      uuid.NewString(),
		URL:     u.String(),
		Method:  h.Request.Method(),
		Type:    strings.ToLower(string(h.Request.Type())),
		TabID:   tabID,
		Referer: h.Request.Header("Referer"),
		Open: func() (engine.StreamFilter, error) {
			opened = true
			if err := h.LoadResponse(c.client, true); err != nil {
				return nil, err
			}
			loaded = true
			return newHijackFilter([]byte(h.Response.Body()), func(body []byte) {
				h.Response.SetBody(body)
			}), nil
		},
	})

	switch {
	case !opened:
		h.ContinueRequest(&proto.FetchContinueRequest{})
	case !loaded:
		slog.Warn("failed to load captured response", "url", u.String())
		h.Response.Fail(proto.NetworkErrorReasonFailed)
	}
}

// hijackFilter replays a fully loaded body as chunks. Whatever was written
// back, followed by the chunks never read, becomes the body the page sees.
type hijackFilter struct {
	mu      sync.Mutex
	chunks  [][]byte
	out     bytes.Buffer
	done    bool
	setBody func([]byte)
}

func newHijackFilter(body []byte, setBody func([]byte)) *hijackFilter {
	var chunks [][]byte
	for len(body) > chunkSize {
		chunks = append(chunks, body[:chunkSize])
		body = body[chunkSize:]
	}
	if len(body) > 0 {
		chunks = append(chunks, body)
	}
	return &hijackFilter{chunks: chunks, setBody: setBody}
}

func (f *hijackFilter) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.chunks) == 0 {
		return nil, io.EOF
	}
	c := f.chunks[0]
	f.chunks = f.chunks[1:]
	return c, nil
}

func (f *hijackFilter) Write(chunk []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out.Write(chunk)
	return nil
}

func (f *hijackFilter) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		return nil
	}
	f.done = true
	for _, c := range f.chunks {
		f.out.Write(c)
	}
	f.chunks = nil
	f.setBody(f.out.Bytes())
	return nil
}
