// Package framework provides a read-only lookup over control-framework
// taxonomies (functions and their categories).
package framework

import (
	_ "embed"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed taxonomy.yaml
var defaultTaxonomy []byte

// ErrUnknownFramework is returned for framework codes absent from the taxonomy.
var ErrUnknownFramework = eris.New("unknown framework")

// Lookup answers taxonomy questions for the scoring engine.
type Lookup interface {
	Frameworks() []Framework
	Functions(framework string) ([]Function, error)
	Function(framework, code string) (Function, bool)
	Categories(framework, function string) ([]Category, error)
	Category(framework, code string) (Category, bool)
}

// Framework is a reference control framework such as NIST CSF 2.0.
type Framework struct {
	Code      string     `yaml:"code" json:"code"`
	Name      string     `yaml:"name" json:"name"`
	Functions []Function `yaml:"functions" json:"functions,omitempty"`
}

// Function is a top-level framework grouping (e.g. GV, PR).
type Function struct {
	Code        string     `yaml:"code" json:"code"`
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description" json:"description,omitempty"`
	Categories  []Category `yaml:"categories" json:"categories,omitempty"`
}

// Category is a grouping under a function (e.g. PR.AA).
type Category struct {
	Code        string `yaml:"code" json:"code"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// Taxonomy is an in-memory Lookup built from YAML.
type Taxonomy struct {
	frameworks []Framework
	byCode     map[string]*Framework
}

var _ Lookup = (*Taxonomy)(nil)

// Default returns the embedded NIST CSF 2.0 and AI RMF taxonomy.
func Default() (*Taxonomy, error) {
	return Parse(defaultTaxonomy)
}

// LoadFile reads a taxonomy from a YAML file, replacing the embedded one.
func LoadFile(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "framework: read taxonomy %s", path)
	}
	return Parse(data)
}

// Load returns the taxonomy at path, or the embedded default when path is empty.
func Load(path string) (*Taxonomy, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	return LoadFile(path)
}

// Parse decodes and validates a taxonomy document.
func Parse(data []byte) (*Taxonomy, error) {
	var doc struct {
		Frameworks []Framework `yaml:"frameworks"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "framework: parse taxonomy")
	}
	if len(doc.Frameworks) == 0 {
		return nil, eris.New("framework: taxonomy defines no frameworks")
	}

	t := &Taxonomy{
		frameworks: doc.Frameworks,
		byCode:     make(map[string]*Framework, len(doc.Frameworks)),
	}
	for i := range t.frameworks {
		fw := &t.frameworks[i]
		if fw.Code == "" {
			return nil, eris.Errorf("framework: framework #%d has no code", i+1)
		}
		if _, dup := t.byCode[fw.Code]; dup {
			return nil, eris.Errorf("framework: duplicate framework %q", fw.Code)
		}
		seen := make(map[string]bool)
		for _, fn := range fw.Functions {
			if fn.Code == "" || seen[fn.Code] {
				return nil, eris.Errorf("framework: %s: missing or duplicate function code %q", fw.Code, fn.Code)
			}
			seen[fn.Code] = true
			for _, cat := range fn.Categories {
				if cat.Code == "" || seen[cat.Code] {
					return nil, eris.Errorf("framework: %s: missing or duplicate category code %q", fw.Code, cat.Code)
				}
				seen[cat.Code] = true
			}
		}
		t.byCode[fw.Code] = fw
	}
	return t, nil
}

// Frameworks returns every framework in document order.
func (t *Taxonomy) Frameworks() []Framework {
	out := make([]Framework, len(t.frameworks))
	copy(out, t.frameworks)
	return out
}

// Functions returns the functions of a framework in document order.
func (t *Taxonomy) Functions(framework string) ([]Function, error) {
	fw, ok := t.byCode[framework]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownFramework, "framework: %q", framework)
	}
	out := make([]Function, len(fw.Functions))
	copy(out, fw.Functions)
	return out, nil
}

// Function looks up a single function by code.
func (t *Taxonomy) Function(framework, code string) (Function, bool) {
	fw, ok := t.byCode[framework]
	if !ok {
		return Function{}, false
	}
	for _, fn := range fw.Functions {
		if fn.Code == code {
			return fn, true
		}
	}
	return Function{}, false
}

// Categories returns the categories of one function. An unknown function
// yields an empty list; an unknown framework is an error.
func (t *Taxonomy) Categories(framework, function string) ([]Category, error) {
	if _, ok := t.byCode[framework]; !ok {
		return nil, eris.Wrapf(ErrUnknownFramework, "framework: %q", framework)
	}
	fn, ok := t.Function(framework, function)
	if !ok {
		return nil, nil
	}
	out := make([]Category, len(fn.Categories))
	copy(out, fn.Categories)
	return out, nil
}

// Category looks up a category by code across all functions of a framework.
func (t *Taxonomy) Category(framework, code string) (Category, bool) {
	fw, ok := t.byCode[framework]
	if !ok {
		return Category{}, false
	}
	for _, fn := range fw.Functions {
		for _, cat := range fn.Categories {
			if cat.Code == code {
				return cat, true
			}
		}
	}
	return Category{}, false
}
