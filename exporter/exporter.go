// Package exporter collects exported URLs into a task list and hands media
// files to a downloader.
package exporter

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/use-agent/webexporter/jsonpath"
	"github.com/use-agent/webexporter/models"
	"github.com/use-agent/webexporter/pyformat"
)

// Export kinds.
const (
	KindURL      = "url"
	KindMedia    = "media"
	KindDownload = "download"
)

// DefaultFilename is the template used when an export step names none.
const DefaultFilename = "{filename}{ext}"

// Request is one export call from a pipeline.
type Request struct {
	Kind       string
	Items      []any
	Filename   string
	DefaultExt string

	// Context is the model at the time of the export; its fields are
	// available to the filename template.
	Context any

	Referer       string
	CookieStoreID string
}

// Task is an entry of the export list.
type Task struct {
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
}

// File is a download handed to the Downloader.
type File struct {
	URL           string
	Filename      string
	Referer       string
	CookieStoreID string
}

// Downloader saves a file and returns where it went.
type Downloader interface {
	Download(ctx context.Context, f File) (string, error)
}

// Exporter is safe for concurrent use.
type Exporter struct {
	mu    sync.Mutex
	tasks []Task
	dl    Downloader
}

// New creates an Exporter. dl may be nil, in which case download exports
// fail.
func New(dl Downloader) *Exporter {
	return &Exporter{dl: dl}
}

// Export records or downloads req.Items according to req.Kind.
func (e *Exporter) Export(ctx context.Context, req Request) error {
	switch req.Kind {
	case KindURL, "":
		tasks := make([]Task, 0, len(req.Items))
		for _, it := range req.Items {
			tasks = append(tasks, Task{URL: jsonpath.Stringify(it)})
		}
		e.add(tasks)
		return nil
	case KindMedia:
		tasks, err := RenderFilenames(req.Items, req.Filename, req.DefaultExt, req.Context)
		if err != nil {
			return err
		}
		e.add(tasks)
		return nil
	case KindDownload:
		return e.download(ctx, req)
	}
	return models.Errorf(models.ErrCodeInvalidInput, "unknown export kind %q", req.Kind)
}

func (e *Exporter) download(ctx context.Context, req Request) error {
	if e.dl == nil {
		return models.Errorf(models.ErrCodeInvalidInput, "downloads are not configured")
	}
	tasks, err := RenderFilenames(req.Items, req.Filename, req.DefaultExt, req.Context)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		f := File{URL: t.URL, Filename: t.Filename, Referer: req.Referer, CookieStoreID: req.CookieStoreID}
		if _, err := e.dl.Download(ctx, f); err != nil {
			return fmt.Errorf("exporter: download %s: %w", t.URL, err)
		}
	}
	slog.Debug("export downloads finished", "count", len(tasks))
	return nil
}

func (e *Exporter) add(tasks []Task) {
	e.mu.Lock()
	e.tasks = append(e.tasks, tasks...)
	e.mu.Unlock()
}

// Tasks returns a copy of the export list.
func (e *Exporter) Tasks() []Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Task(nil), e.tasks...)
}

// Clear empties the export list.
func (e *Exporter) Clear() {
	e.mu.Lock()
	e.tasks = nil
	e.mu.Unlock()
}

// Output renders the export list one task per line, in the input-file
// format download managers such as aria2 accept: "url#out=filename" or the
// bare URL.
func (e *Exporter) Output() string {
	var b strings.Builder
	for _, t := range e.Tasks() {
		b.WriteString(t.URL)
		if t.Filename != "" {
			b.WriteString("#out=")
			b.WriteString(t.Filename)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// RenderFilenames pairs every item with a filename rendered from tmpl. The
// template sees the fields of ctx plus, per item:
//
//	index     position of the item
//	filebase  last path segment of the URL ("a.jpg")
//	filename  filebase without extension ("a")
//	ext       extension with any ":suffix" removed, else defaultExt, else ".jpg"
//
// Fields already present in ctx take precedence over the derived ones. An
// item may be a URL string or an object with a "url" field whose other
// fields join the template context.
func RenderFilenames(items []any, tmpl, defaultExt string, ctx any) ([]Task, error) {
	if tmpl == "" {
		tmpl = DefaultFilename
	}
	base := map[string]any{}
	if m, ok := ctx.(map[string]any); ok {
		base = maps.Clone(m)
	}

	tasks := make([]Task, 0, len(items))
	for i, it := range items {
		fields := maps.Clone(base)
		raw := it
		if m, ok := it.(map[string]any); ok {
			raw = m["url"]
			for k, v := range m {
				if k != "url" {
					fields[k] = v
				}
			}
		}
		u, err := url.Parse(jsonpath.Stringify(raw))
		if err != nil || u.Scheme == "" {
			return nil, models.Errorf(models.ErrCodeInvalidInput, "export item %d is not a URL: %v", i, raw)
		}

		fields["index"] = i
		file := path.Base(u.Path)
		if file == "/" || file == "." {
			file = ""
		}
		ext := path.Ext(file)
		setDefault(fields, "filebase", file)
		setDefault(fields, "filename", strings.TrimSuffix(file, ext))
		if ext == "" {
			ext = defaultExt
		}
		if ext == "" {
			ext = ".jpg"
		}
		setDefault(fields, "ext", ext)
		if s, ok := fields["ext"].(string); ok {
			fields["ext"], _, _ = strings.Cut(s, ":")
		}

		name, err := pyformat.Format(tmpl, fields)
		if err != nil {
			return nil, models.NewError(models.ErrCodeInvalidInput, "render filename", err)
		}
		tasks = append(tasks, Task{URL: u.String(), Filename: name})
	}
	return tasks, nil
}

func setDefault(m map[string]any, key string, v any) {
	if !jsonpath.Truthy(m[key]) {
		m[key] = v
	}
}
