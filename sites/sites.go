// Package sites loads site definitions: per-site table layouts, the
// extractors that turn captured responses into rows, and the spiders that
// drive a tab.
//
// A site file is YAML or JSON:
//
//	id: gallery
//	name: Gallery
//	db:
//	  tables:
//	    posts: id
//	extractors:
//	  timeline:
//	    url: https://example.com/api/timeline*
//	    steps:
//	      - use: response
//	        type: json
//	spiders:
//	  scroll:
//	    steps:
//	      - use: loop
//	        steps: [...]
package sites

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/use-agent/webexporter/engine"
	"github.com/use-agent/webexporter/pipeline"
	"github.com/use-agent/webexporter/store"
)

// Site is one loaded site definition.
type Site struct {
	ID         string
	Name       string
	Tables     map[string]string // table -> primary key path
	Extractors map[string]*Extractor
	Spiders    map[string]*Spider
}

// Extractor runs Steps on responses whose URL matches URL.
type Extractor struct {
	URL   string
	Steps []*pipeline.Step
}

// Spider is a pipeline that drives a tab.
type Spider struct {
	Name  string
	Steps []*pipeline.Step
}

type siteFile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	DB   struct {
		Tables map[string]string `json:"tables"`
	} `json:"db"`
	Extractors map[string]struct {
		URL   string          `json:"url"`
		Steps json.RawMessage `json:"steps"`
	} `json:"extractors"`
	Spiders map[string]struct {
		Name  string          `json:"name"`
		Steps json.RawMessage `json:"steps"`
	} `json:"spiders"`
}

// Parse decodes one site definition. name is used in errors and to pick
// the format: ".json" files are read as JSON, anything else as YAML.
func Parse(name string, data []byte) (*Site, error) {
	if !strings.EqualFold(filepath.Ext(name), ".json") {
		// YAML is decoded generically and re-encoded so that steps go
		// through the same JSON decoding as everywhere else.
		var generic any
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return nil, fmt.Errorf("sites: %s: %w", name, err)
		}
		var err error
		if data, err = json.Marshal(generic); err != nil {
			return nil, fmt.Errorf("sites: %s: %w", name, err)
		}
	}

	var f siteFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("sites: %s: %w", name, err)
	}
	if f.ID == "" {
		return nil, fmt.Errorf("sites: %s: missing id", name)
	}

	s := &Site{
		ID:         f.ID,
		Name:       f.Name,
		Tables:     map[string]string{},
		Extractors: map[string]*Extractor{},
		Spiders:    map[string]*Spider{},
	}
	if s.Name == "" {
		s.Name = s.ID
	}
	for table, pk := range f.DB.Tables {
		// Dexie-style "id,created" declarations: the first entry is the key.
		pk, _, _ = strings.Cut(pk, ",")
		pk = strings.TrimSpace(pk)
		if pk == "" {
			return nil, fmt.Errorf("sites: %s: table %s has no primary key", name, table)
		}
		s.Tables[table] = pk
	}
	for id, e := range f.Extractors {
		if e.URL == "" {
			return nil, fmt.Errorf("sites: %s: extractor %s has no url", name, id)
		}
		steps, err := pipeline.ParseSteps(e.Steps)
		if err != nil {
			return nil, fmt.Errorf("sites: %s: extractor %s: %w", name, id, err)
		}
		s.Extractors[id] = &Extractor{URL: e.URL, Steps: steps}
	}
	for id, sp := range f.Spiders {
		steps, err := pipeline.ParseSteps(sp.Steps)
		if err != nil {
			return nil, fmt.Errorf("sites: %s: spider %s: %w", name, id, err)
		}
		spName := sp.Name
		if spName == "" {
			spName = id
		}
		s.Spiders[id] = &Spider{Name: spName, Steps: steps}
	}
	return s, nil
}

// Catalog is the set of loaded sites. It is read-only once built.
type Catalog struct {
	sites map[string]*Site
}

// NewCatalog indexes sites by id. Duplicate ids are an error.
func NewCatalog(sites ...*Site) (*Catalog, error) {
	c := &Catalog{sites: make(map[string]*Site, len(sites))}
	for _, s := range sites {
		if _, dup := c.sites[s.ID]; dup {
			return nil, fmt.Errorf("sites: duplicate site id %q", s.ID)
		}
		c.sites[s.ID] = s
	}
	return c, nil
}

// Load parses every .yaml, .yml and .json file in dir.
func Load(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("sites: %w", err)
	}
	var sites []*Site
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
		default:
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("sites: %w", err)
		}
		s, err := Parse(e.Name(), data)
		if err != nil {
			return nil, err
		}
		sites = append(sites, s)
	}
	return NewCatalog(sites...)
}

// Site returns the site with id.
func (c *Catalog) Site(id string) (*Site, bool) {
	s, ok := c.sites[id]
	return s, ok
}

// Sites returns every site ordered by id.
func (c *Catalog) Sites() []*Site {
	out := make([]*Site, 0, len(c.sites))
	for _, s := range c.sites {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Schema implements store.Schemas.
func (c *Catalog) Schema(siteID string) (store.Schema, bool) {
	s, ok := c.sites[siteID]
	if !ok {
		return store.Schema{}, false
	}
	return store.Schema{SiteID: s.ID, Tables: s.Tables}, true
}

// Spider implements spider.Catalog.
func (c *Catalog) Spider(siteID, spiderID string) ([]*pipeline.Step, bool) {
	s, ok := c.sites[siteID]
	if !ok {
		return nil, false
	}
	sp, ok := s.Spiders[spiderID]
	if !ok {
		return nil, false
	}
	return sp.Steps, true
}

// Register adds every extractor to reg, ordered by site then extractor id.
func (c *Catalog) Register(reg *engine.Registry) error {
	for _, s := range c.Sites() {
		ids := make([]string, 0, len(s.Extractors))
		for id := range s.Extractors {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			e := s.Extractors[id]
			err := reg.Add(&engine.Rule{SiteID: s.ID, ExtractorID: id, URLPattern: e.URL, Steps: e.Steps})
			if err != nil {
				return err
			}
		}
	}
	return nil
}
