// internal/form/definition.go
//
// Forms subsystem: YAML definition loader.
//
// Context
//   Each public form is declared in a YAML file: identifier, title, fields,
//   and per-field rules.  The six site forms ship embedded under defs/.  An
//   optional override directory (config `forms.definitions_dir`) may replace
//   any of them by ID or add new ones.  Definitions are parsed once at boot
//   into a Registry; the renderer, the validator, and the HTTP handlers all
//   read from it, so one file is the single source of truth for a form.
//
// Workflow
//   •  Structs mirror the YAML schema: FormDef → FieldDef → OptionDef.
//   •  ParseFormDef decodes one document and enforces structural rules.
//   •  LoadFS walks an fs.FS and registers every “*.yaml”.
//   •  Registry.Get offers read-only access by ID.
//
//------------------------------------------------------------------------------

package form

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"sync"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/yanizio/agrsite/internal/security"
)

//go:embed defs/*.yaml
var bundled embed.FS

// ErrUnknownForm is returned for IDs missing from the registry.
var ErrUnknownForm = errors.New("form: unknown form")

// Field kinds understood by the validator and the renderer.
const (
	KindText        = "text"
	KindTextarea    = "textarea"
	KindEmail       = "email"
	KindPhone       = "phone"
	KindPAN         = "pan"
	KindNumber      = "number"
	KindSelect      = "select"
	KindMultiSelect = "multiselect"
	KindCheckbox    = "checkbox"
)

var knownKinds = map[string]bool{
	KindText: true, KindTextarea: true, KindEmail: true, KindPhone: true,
	KindPAN: true, KindNumber: true, KindSelect: true, KindMultiSelect: true,
	KindCheckbox: true,
}

// -----------------------------------------------------------------------------
// Data structures
// -----------------------------------------------------------------------------

// FormDef represents one form definition loaded from YAML.
type FormDef struct {
	ID      string     `yaml:"id"`
	Title   string     `yaml:"title"`
	Success string     `yaml:"success"` // confirmation copy shown after delivery
	Fields  []FieldDef `yaml:"fields"`
}

// OptionDef pairs a coded option with the label sent downstream.
type OptionDef struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
}

// Messages overrides the default wording per rule.  Blank entries fall back
// to generated text.
type Messages struct {
	Required  string `yaml:"required"`
	MinLength string `yaml:"minlength"`
	MaxLength string `yaml:"maxlength"`
	Invalid   string `yaml:"invalid"`
	Pattern   string `yaml:"pattern"`
	Option    string `yaml:"option"`
	Min       string `yaml:"min"`
	Max       string `yaml:"max"`
}

// FieldDef describes a single input control and its rules.
type FieldDef struct {
	Name        string      `yaml:"name"`
	Label       string      `yaml:"label"`
	Kind        string      `yaml:"kind"`
	Placeholder string      `yaml:"placeholder"`
	Required    bool        `yaml:"required"`
	MinLength   int         `yaml:"minlength"`
	MaxLength   int         `yaml:"maxlength"`
	Pattern     string      `yaml:"pattern"`
	Options     []OptionDef `yaml:"options"`
	Join        bool        `yaml:"join"` // multiselect labels sent as one ", "-joined string
	Min         *float64    `yaml:"min"`
	Max         *float64    `yaml:"max"`
	Messages    Messages    `yaml:"messages"`

	re *regexp.Regexp
}

// FieldNames lists field names in declaration order.
func (fd *FormDef) FieldNames() []string {
	out := make([]string, len(fd.Fields))
	for i := range fd.Fields {
		out[i] = fd.Fields[i].Name
	}
	return out
}

// -----------------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------------

// Registry maps form ID → *FormDef.  Safe for concurrent reads after boot.
type Registry struct {
	mu    sync.RWMutex
	forms map[string]*FormDef
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{forms: make(map[string]*FormDef)} }

// LoadDefaults builds a registry from the bundled definitions, then applies
// overrideDir when it is non-empty.
func LoadDefaults(overrideDir string) (*Registry, error) {
	r := NewRegistry()
	if err := r.LoadFS(bundled, "defs"); err != nil {
		return nil, err
	}
	if overrideDir != "" {
		err := r.LoadFS(os.DirFS(overrideDir), ".")
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return r, nil
}

// Get returns a parsed FormDef by ID.
func (r *Registry) Get(id string) (*FormDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fd, ok := r.forms[id]
	return fd, ok
}

// IDs returns registered form IDs, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.forms))
	for id := range r.forms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Register inserts or replaces fd.  Caller must pass a validated definition.
func (r *Registry) Register(fd *FormDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forms[fd.ID] = fd
}

// LoadFS parses every “*.yaml” under dir in fsys and registers it.  Later
// calls override earlier ones by ID.
func (r *Registry) LoadFS(fsys fs.FS, dir string) error {
	return fs.WalkDir(fsys, dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || path.Ext(d.Name()) != ".yaml" {
			return nil
		}
		raw, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("read form file %s: %w", p, err)
		}
		fd, err := ParseFormDef(raw, p)
		if err != nil {
			return err // fail fast so issues surface loudly.
		}
		r.Register(fd)
		return nil
	})
}

// ParseFormDef decodes one YAML document and validates its structure.  src
// names the document in error messages.
func ParseFormDef(raw []byte, src string) (*FormDef, error) {
	var fd FormDef
	if err := yaml.Unmarshal(raw, &fd); err != nil {
		return nil, fmt.Errorf("parse YAML %s: %w", src, err)
	}
	if err := validateFormDef(&fd, src); err != nil {
		return nil, err
	}
	return &fd, nil
}

// -----------------------------------------------------------------------------
// Validation helpers
// -----------------------------------------------------------------------------

func validateFormDef(fd *FormDef, src string) error {
	if fd.ID == "" {
		return fmt.Errorf("form definition %s: missing required 'id'", src)
	}
	if len(fd.Fields) == 0 {
		return fmt.Errorf("form definition %s: must have 'fields'", src)
	}

	seen := make(map[string]struct{}, len(fd.Fields))
	for i := range fd.Fields {
		f := &fd.Fields[i]
		if err := validateField(f, src); err != nil {
			return err
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("form %s: duplicate field name '%s'", src, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

// validateField confirms that essential attributes are present and sane, and
// compiles the pattern once.
func validateField(f *FieldDef, src string) error {
	if f.Name == "" {
		return fmt.Errorf("form %s: field missing 'name'", src)
	}
	if f.Label == "" {
		return fmt.Errorf("form %s: field '%s' missing 'label'", src, f.Name)
	}
	if !knownKinds[f.Kind] {
		return fmt.Errorf("form %s: field '%s' has unknown kind %q", src, f.Name, f.Kind)
	}
	if f.Name == TokenField || lo.Contains(security.HoneypotNames(), f.Name) {
		return fmt.Errorf("form %s: field name '%s' is reserved", src, f.Name)
	}

	if f.Pattern != "" {
		re, err := regexp.Compile(f.Pattern)
		if err != nil {
			return fmt.Errorf("form %s: field '%s' invalid regex pattern: %v", src, f.Name, err)
		}
		f.re = re
	}

	if f.MinLength < 0 || f.MaxLength < 0 {
		return fmt.Errorf("form %s: field '%s' minlength/maxlength cannot be negative", src, f.Name)
	}
	if f.MaxLength > 0 && f.MinLength > f.MaxLength {
		return fmt.Errorf("form %s: field '%s' minlength greater than maxlength", src, f.Name)
	}
	if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
		return fmt.Errorf("form %s: field '%s' min greater than max", src, f.Name)
	}

	if (f.Kind == KindSelect || f.Kind == KindMultiSelect) && len(f.Options) == 0 {
		return fmt.Errorf("form %s: field '%s' needs options", src, f.Name)
	}
	for _, o := range f.Options {
		if o.ID == "" || o.Label == "" {
			return fmt.Errorf("form %s: field '%s' has an option without id or label", src, f.Name)
		}
	}
	return nil
}
