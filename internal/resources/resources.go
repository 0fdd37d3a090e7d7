// Package resources loads the static file enumerating valid subjects,
// forms and classes. It is read once at startup; upload requests refer
// to subjects and forms by index into these lists.
package resources

import (
	"encoding/json"
	"fmt"
	"os"
)

// Entry is one subject or form, with its English and local names.
type Entry struct {
	Name  string `json:"name"`
	CName string `json:"cname"`
}

type Resources struct {
	Subjects []Entry  `json:"subjects"`
	Forms    []Entry  `json:"forms"`
	Classes  []string `json:"classes"`

	raw string
}

// Load reads and parses the resource file at path.
func Load(path string) (*Resources, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("resources: read %s: %w", path, err)
	}
	var r Resources
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("resources: parse %s: %w", path, err)
	}
	r.raw = string(data)
	return &r, nil
}

// Raw returns the file's original JSON text, which is what the
// globalData command replies with.
func (r *Resources) Raw() string {
	return r.raw
}

// Subject resolves a subject by list index.
func (r *Resources) Subject(i int) (Entry, bool) {
	if i < 0 || i >= len(r.Subjects) {
		return Entry{}, false
	}
	return r.Subjects[i], true
}

// Form resolves a form by list index.
func (r *Resources) Form(i int) (Entry, bool) {
	if i < 0 || i >= len(r.Forms) {
		return Entry{}, false
	}
	return r.Forms[i], true
}
