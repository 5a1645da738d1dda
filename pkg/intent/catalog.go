package intent

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog lists the intents and entity kinds of one project.
type Catalog struct {
	Project  string       `yaml:"project" json:"project"`
	Intents  []IntentSpec `yaml:"intents" json:"intents"`
	Entities []EntitySpec `yaml:"entities" json:"entities"`
}

// IntentSpec describes an intent with example utterances.
type IntentSpec struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Examples    []string `yaml:"examples,omitempty" json:"examples,omitempty"`
}

// EntitySpec describes an entity kind.
type EntitySpec struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Classroom is the built-in catalog for classroom voice commands.
var Classroom = &Catalog{
	Project: "classroom",
	Intents: []IntentSpec{
		{Name: "OpenJournal", Description: "open the class journal", Examples: []string{"открой журнал 9 в класса"}},
		{Name: "SplitGroups", Description: "split the students into groups", Examples: []string{"подели учеников на 3 групп"}},
		{Name: "MarkAbsent", Description: "mark a student as absent", Examples: []string{"Әлібек сабақта жоқ", "Алмаз сабақта жоқ"}},
		{Name: NoneIntent, Description: "anything else"},
	},
	Entities: []EntitySpec{
		{Name: "Class", Description: "class or grade, e.g. 9 В"},
		{Name: "GroupCount", Description: "number of groups"},
		{Name: "Student", Description: "a student's name"},
	},
}

// LoadCatalog reads a catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("intent: read catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("intent: parse catalog %s: %w", path, err)
	}
	if c.Project == "" || len(c.Intents) == 0 {
		return nil, fmt.Errorf("intent: catalog %s needs a project and intents", path)
	}
	return &c, nil
}

func (c *Catalog) hasIntent(name string) bool {
	if name == NoneIntent {
		return true
	}
	for _, i := range c.Intents {
		if i.Name == name {
			return true
		}
	}
	return false
}

func (c *Catalog) hasEntity(name string) bool {
	for _, e := range c.Entities {
		if e.Name == name {
			return true
		}
	}
	return false
}

// prompt renders the system instruction for a language model.
func (c *Catalog) prompt(locale string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You classify short voice commands (locale %s) for the %q project.\n", locale, c.Project)
	b.WriteString("Intents:\n")
	for _, i := range c.Intents {
		fmt.Fprintf(&b, "- %s: %s", i.Name, i.Description)
		if len(i.Examples) > 0 {
			fmt.Fprintf(&b, " (e.g. %s)", strings.Join(i.Examples, "; "))
		}
		b.WriteByte('\n')
	}
	if len(c.Entities) > 0 {
		b.WriteString("Entities:\n")
		for _, e := range c.Entities {
			fmt.Fprintf(&b, "- %s: %s\n", e.Name, e.Description)
		}
	}
	b.WriteString("Reply with JSON only: {\"topIntent\": string, \"intents\": [{\"category\", \"confidenceScore\"}], " +
		"\"entities\": [{\"category\", \"text\", \"offset\", \"length\", \"confidenceScore\"}]}. " +
		"Score every intent. Use \"None\" when nothing fits.")
	return b.String()
}

// Registry maps project names to catalogs.
type Registry struct {
	Default  string
	Catalogs map[string]*Catalog
}

// NewRegistry returns a registry whose default project is the first catalog.
func NewRegistry(catalogs ...*Catalog) *Registry {
	r := &Registry{Catalogs: make(map[string]*Catalog)}
	for _, c := range catalogs {
		if r.Default == "" {
			r.Default = c.Project
		}
		r.Catalogs[c.Project] = c
	}
	return r
}

// Lookup returns the catalog of project, or the default one for "".
func (r *Registry) Lookup(project string) (*Catalog, error) {
	if project == "" {
		project = r.Default
	}
	c, ok := r.Catalogs[project]
	if !ok {
		return nil, fmt.Errorf("%w: unknown project %q", ErrNotConfigured, project)
	}
	return c, nil
}
