// Package report renders the project report: declarative documents with a
// fixed set of sections, shown as a tabbed page with a sidebar.
package report

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultVariant is the report shown when none is requested
const DefaultVariant = "final"

// Sections every report must contain, in this order
var Sections = []string{
	"Introduction",
	"Materials & Methods",
	"Results & Discussion",
	"Data availability",
}

//go:embed variants/*.yaml
var variantFS embed.FS

// Document is one report variant
type Document struct {
	// Variant is the name the document was loaded under
	Variant string `yaml:"-"`

	Title    string    `yaml:"title"`
	Subtitle string    `yaml:"subtitle"`
	Sidebar  []string  `yaml:"sidebar"`
	Links    []Link    `yaml:"links"`
	Sections []Section `yaml:"sections"`
}

// Link is an external hyperlink shown in the sidebar
type Link struct {
	Text string `yaml:"text"`
	URL  string `yaml:"url"`
}

// Section is one tab of the report
type Section struct {
	Name   string  `yaml:"name"`
	Blocks []Block `yaml:"blocks"`
}

// Block is one element of a section. Exactly one field is set.
type Block struct {
	Header    string `yaml:"header,omitempty"`
	Paragraph string `yaml:"paragraph,omitempty"`
	Table     *Table `yaml:"table,omitempty"`
	Image     *Image `yaml:"image,omitempty"`
}

// Table is a literal data table
type Table struct {
	Columns []string   `yaml:"columns"`
	Rows    [][]string `yaml:"rows"`
}

// Image is a static image referenced by URL
type Image struct {
	URL     string `yaml:"url"`
	Caption string `yaml:"caption"`
}

// Variants returns the names of the embedded reports, sorted
func Variants() []string {
	entries, err := variantFS.ReadDir("variants")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".yaml") {
			names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
		}
	}
	sort.Strings(names)
	return names
}

// Load returns the embedded report variant
func Load(variant string) (*Document, error) {
	data, err := variantFS.ReadFile(path.Join("variants", variant+".yaml"))
	if err != nil {
		return nil, errors.Errorf("unknown report variant %q (have %s)",
			variant, strings.Join(Variants(), ", "))
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "report variant %s", variant)
	}
	doc.Variant = variant
	return doc, nil
}

// LoadAll returns every embedded variant keyed by name
func LoadAll() (map[string]*Document, error) {
	docs := make(map[string]*Document)
	for _, name := range Variants() {
		doc, err := Load(name)
		if err != nil {
			return nil, err
		}
		docs[name] = doc
	}
	return docs, nil
}

// Parse decodes and validates a YAML report
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "parsing report")
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks the document has a title, the fixed sections in order,
// one field per block and rectangular tables
func (d *Document) Validate() error {
	if d.Title == "" {
		return errors.New("report has no title")
	}
	if len(d.Sections) != len(Sections) {
		return errors.Errorf("report has %d sections, want %d: %s",
			len(d.Sections), len(Sections), strings.Join(Sections, ", "))
	}
	for i, s := range d.Sections {
		if s.Name != Sections[i] {
			return errors.Errorf("section %d is %q, want %q", i+1, s.Name, Sections[i])
		}
		for j, b := range s.Blocks {
			if err := b.validate(); err != nil {
				return errors.Wrapf(err, "section %q block %d", s.Name, j+1)
			}
		}
	}
	for _, l := range d.Links {
		if l.URL == "" {
			return errors.Errorf("link %q has no URL", l.Text)
		}
	}
	return nil
}

func (b Block) validate() error {
	set := 0
	if b.Header != "" {
		set++
	}
	if b.Paragraph != "" {
		set++
	}
	if b.Table != nil {
		set++
		for i, row := range b.Table.Rows {
			if len(row) != len(b.Table.Columns) {
				return fmt.Errorf("table row %d has %d cells for %d columns", i+1, len(row), len(b.Table.Columns))
			}
		}
	}
	if b.Image != nil {
		set++
		if b.Image.URL == "" {
			return fmt.Errorf("image has no URL")
		}
	}
	if set != 1 {
		return fmt.Errorf("block must set exactly one of header, paragraph, table or image, got %d", set)
	}
	return nil
}
