package templates

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/KevinKickass/OpenCellBench/internal/action"
	"gopkg.in/yaml.v3"
)

var ErrTemplateNotFound = errors.New("template not found")

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Template is a named, pre-validated list of actions that can be appended
// to a session in one step.
type Template struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Actions     []action.Action `json:"actions"`
}

type templateFile struct {
	Description string         `yaml:"description"`
	Actions     []action.Draft `yaml:"actions"`
}

// Summary is the listing view of a template.
type Summary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ActionCount int    `json:"action_count"`
}

type Loader struct {
	cache       sync.Map
	searchPaths []string
}

func NewLoader(searchPaths []string) *Loader {
	return &Loader{searchPaths: searchPaths}
}

// Load returns the template stored as <name>.yaml in the first search path
// that has it. Every action is validated; one bad step rejects the file.
func (l *Loader) Load(name string) (*Template, error) {
	if !namePattern.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}

	if cached, ok := l.cache.Load(name); ok {
		return cached.(*Template), nil
	}

	var data []byte
	var foundPath string
	for _, searchPath := range l.searchPaths {
		for _, ext := range []string{".yaml", ".yml"} {
			fullPath := filepath.Join(searchPath, name+ext)
			b, err := os.ReadFile(fullPath)
			if err == nil {
				data, foundPath = b, fullPath
				break
			}
		}
		if data != nil {
			break
		}
	}

	if data == nil {
		return nil, fmt.Errorf("%w: %s (searched in: %v)", ErrTemplateNotFound, name, l.searchPaths)
	}

	tmpl, err := parse(name, data)
	if err != nil {
		return nil, fmt.Errorf("invalid template %s: %w", foundPath, err)
	}

	l.cache.Store(name, tmpl)
	return tmpl, nil
}

func parse(name string, data []byte) (*Template, error) {
	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template: %w", err)
	}
	if len(file.Actions) == 0 {
		return nil, fmt.Errorf("template has no actions")
	}

	tmpl := &Template{
		Name:        name,
		Description: file.Description,
		Actions:     make([]action.Action, 0, len(file.Actions)),
	}
	for i, d := range file.Actions {
		a, err := action.Validate(d)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i+1, err)
		}
		tmpl.Actions = append(tmpl.Actions, a)
	}
	return tmpl, nil
}

// List returns every loadable template, sorted by name. Files that fail to
// load are skipped; the first search path wins on duplicate names.
func (l *Loader) List() ([]Summary, error) {
	seen := make(map[string]bool)
	var out []Summary

	for _, searchPath := range l.searchPaths {
		entries, err := os.ReadDir(searchPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to read %s: %w", searchPath, err)
		}

		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			ext := filepath.Ext(e.Name())
			if ext != ".yaml" && ext != ".yml" {
				continue
			}
			name := strings.TrimSuffix(e.Name(), ext)
			if seen[name] {
				continue
			}
			seen[name] = true

			tmpl, err := l.Load(name)
			if err != nil {
				continue
			}
			out = append(out, Summary{
				Name:        tmpl.Name,
				Description: tmpl.Description,
				ActionCount: len(tmpl.Actions),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (l *Loader) ClearCache() {
	l.cache.Range(func(key, value interface{}) bool {
		l.cache.Delete(key)
		return true
	})
}
