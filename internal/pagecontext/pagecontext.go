// Package pagecontext maps concrete URL paths to a stable page key and a
// path template with identifiers replaced by placeholders.
package pagecontext

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Context identifies a page independent of the ids in its URL.
type Context struct {
	PageKey      string
	PathTemplate string
}

// Resolver turns a path into its page Context.
type Resolver interface {
	Resolve(path string) Context
}

// Route is one entry of the YAML route table.
type Route struct {
	Pattern string `yaml:"pattern"`
	PageKey string `yaml:"pageKey"`
}

type tableFile struct {
	Routes []Route `yaml:"routes"`
}

type compiledRoute struct {
	Route
	segments []string
	wildcard bool
}

// Table is an ordered list of routes; the first match wins. Paths that match
// nothing fall back to Normalize.
type Table struct {
	routes []compiledRoute
}

//go:embed routes.yaml
var defaultRoutes []byte

var defaultTable = mustParse(defaultRoutes)

// Default returns the built-in route table.
func Default() *Table { return defaultTable }

func mustParse(data []byte) *Table {
	t, err := ParseTable(data)
	if err != nil {
		panic(fmt.Sprintf("pagecontext: embedded routes: %v", err))
	}
	return t
}

// LoadTable reads a route table from a YAML file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes %s: %w", path, err)
	}
	t, err := ParseTable(data)
	if err != nil {
		return nil, fmt.Errorf("routes %s: %w", path, err)
	}
	return t, nil
}

// ParseTable decodes a YAML route table.
func ParseTable(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse routes: %w", err)
	}
	return NewTable(f.Routes)
}

// NewTable validates and compiles routes, keeping their order.
func NewTable(routes []Route) (*Table, error) {
	t := &Table{routes: make([]compiledRoute, 0, len(routes))}
	var errs []error
	for i, r := range routes {
		cr, err := compile(r)
		if err != nil {
			errs = append(errs, fmt.Errorf("route[%d] %q: %w", i, r.Pattern, err))
			continue
		}
		t.routes = append(t.routes, cr)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return t, nil
}

func compile(r Route) (compiledRoute, error) {
	if !strings.HasPrefix(r.Pattern, "/") {
		return compiledRoute{}, errors.New("pattern must start with /")
	}
	if r.PageKey == "" {
		return compiledRoute{}, errors.New("pageKey is required")
	}
	cr := compiledRoute{Route: r, segments: splitPath(r.Pattern)}
	for i, seg := range cr.segments {
		if seg == "*" {
			if i != len(cr.segments)-1 {
				return compiledRoute{}, errors.New("* is only allowed as the last segment")
			}
			cr.wildcard = true
			cr.segments = cr.segments[:i]
		}
		if seg == ":" {
			return compiledRoute{}, errors.New("parameter segment needs a name")
		}
	}
	return cr, nil
}

// Routes returns the table in match order.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	for i, r := range t.routes {
		out[i] = r.Route
	}
	return out
}

// Resolve returns the first matching route's context, or the normalized
// fallback when no route matches.
func (t *Table) Resolve(path string) Context {
	segs := splitPath(stripQuery(path))
	for _, r := range t.routes {
		if r.match(segs) {
			return Context{PageKey: r.PageKey, PathTemplate: r.Pattern}
		}
	}
	return Normalize(path)
}

func (r compiledRoute) match(segs []string) bool {
	if r.wildcard {
		if len(segs) < len(r.segments) {
			return false
		}
	} else if len(segs) != len(r.segments) {
		return false
	}
	for i, want := range r.segments {
		if strings.HasPrefix(want, ":") {
			continue
		}
		if want != segs[i] {
			return false
		}
	}
	return true
}

var (
	numericSeg = regexp.MustCompile(`^\d+$`)
	uuidSeg    = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	longHexSeg = regexp.MustCompile(`^[0-9a-fA-F]{16,}$`)
)

// Normalize derives a context for unknown paths: numeric, UUID-like and
// long hex segments become :id, and the key is a slug of the template.
func Normalize(path string) Context {
	segs := splitPath(stripQuery(path))
	if len(segs) == 0 {
		return Context{PageKey: "home", PathTemplate: "/"}
	}
	for i, seg := range segs {
		if numericSeg.MatchString(seg) || uuidSeg.MatchString(seg) || longHexSeg.MatchString(seg) {
			segs[i] = ":id"
		}
	}
	tmpl := "/" + strings.Join(segs, "/")
	key := strings.ReplaceAll(strings.Join(segs, "_"), ":", "")
	return Context{PageKey: key, PathTemplate: tmpl}
}

func stripQuery(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		return path[:i]
	}
	return path
}

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	segs := parts[:0]
	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}
	return segs
}
