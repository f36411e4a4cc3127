package pages

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type setYAML struct {
	Title    string           `yaml:"title,omitempty"`
	Subtitle string           `yaml:"subtitle,omitempty"`
	Footer   string           `yaml:"footer,omitempty"`
	Pages    []descriptorYAML `yaml:"pages"`
}

type axisYAML struct {
	Column string `yaml:"column"`
	Label  string `yaml:"label,omitempty"`
}

type headingsYAML struct {
	Analysis string `yaml:"analysis,omitempty"`
	Groups   string `yaml:"groups,omitempty"`
	Panel    string `yaml:"panel,omitempty"`
	Insights string `yaml:"insights,omitempty"`
}

type emptyYAML struct {
	Message string `yaml:"message,omitempty"`
	Hint    string `yaml:"hint,omitempty"`
}

type statYAML struct {
	Label string `yaml:"label"`
	Kind  string `yaml:"kind"`
	Unit  string `yaml:"unit,omitempty"`
	Text  string `yaml:"text,omitempty"`
}

type insightYAML struct {
	Label       string `yaml:"label"`
	Kind        string `yaml:"kind"`
	Column      string `yaml:"column,omitempty"`
	ValueColumn string `yaml:"value_column,omitempty"`
	GroupColumn string `yaml:"group_column,omitempty"`
}

type descriptorYAML struct {
	Slug     string        `yaml:"slug"`
	Title    string        `yaml:"title"`
	Table    string        `yaml:"table"`
	X        axisYAML      `yaml:"x"`
	Y        axisYAML      `yaml:"y"`
	Group    axisYAML      `yaml:"group"`
	Headings headingsYAML  `yaml:"headings,omitempty"`
	Panel    []statYAML    `yaml:"panel,omitempty"`
	Insights []insightYAML `yaml:"insights,omitempty"`
	Empty    emptyYAML     `yaml:"empty,omitempty"`
}

// LoadFile reads a YAML page set. Unknown fields and unknown stat or insight
// kinds are errors.
func LoadFile(path string) (Set, error) {
	file, err := os.Open(path)
	if err != nil {
		return Set{}, fmt.Errorf("open page set: %w", err)
	}
	defer func() { _ = file.Close() }()

	set, err := Decode(file)
	if err != nil {
		return Set{}, fmt.Errorf("load page set %q: %w", path, err)
	}
	return set, nil
}

func Decode(reader io.Reader) (Set, error) {
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	var raw setYAML
	if err := decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return Set{}, fmt.Errorf("page set is empty")
		}
		return Set{}, fmt.Errorf("invalid YAML: %w", err)
	}

	set := Set{Title: raw.Title, Subtitle: raw.Subtitle, Footer: raw.Footer}
	for _, page := range raw.Pages {
		descriptor, err := page.descriptor()
		if err != nil {
			return Set{}, err
		}
		set.Pages = append(set.Pages, descriptor)
	}
	if err := set.Validate(); err != nil {
		return Set{}, err
	}
	return set, nil
}

// Encode writes set in the format LoadFile reads.
func Encode(set Set) ([]byte, error) {
	raw := setYAML{Title: set.Title, Subtitle: set.Subtitle, Footer: set.Footer}
	for _, page := range set.Pages {
		raw.Pages = append(raw.Pages, encodeDescriptor(page))
	}
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(raw); err != nil {
		return nil, fmt.Errorf("encode page set: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("encode page set: %w", err)
	}
	return buf.Bytes(), nil
}

func (p descriptorYAML) descriptor() (Descriptor, error) {
	d := Descriptor{
		Slug:            p.Slug,
		Title:           p.Title,
		Table:           p.Table,
		XColumn:         p.X.Column,
		XLabel:          p.X.Label,
		YColumn:         p.Y.Column,
		YLabel:          p.Y.Label,
		GroupColumn:     p.Group.Column,
		AnalysisHeading: p.Headings.Analysis,
		GroupHeading:    p.Headings.Groups,
		PanelHeading:    p.Headings.Panel,
		InsightsHeading: p.Headings.Insights,
		EmptyMessage:    p.Empty.Message,
		EmptyHint:       p.Empty.Hint,
	}
	for _, entry := range p.Panel {
		stat, err := entry.stat()
		if err != nil {
			return Descriptor{}, fmt.Errorf("page %q: %w", p.Slug, err)
		}
		d.Panel = append(d.Panel, PanelStat{Label: entry.Label, Stat: stat})
	}
	for _, entry := range p.Insights {
		insight, err := entry.insight()
		if err != nil {
			return Descriptor{}, fmt.Errorf("page %q: %w", p.Slug, err)
		}
		d.Insights = append(d.Insights, PanelInsight{Label: entry.Label, Insight: insight})
	}
	return d, nil
}

func (s statYAML) stat() (Stat, error) {
	switch s.Kind {
	case "count_rows":
		return CountRows{}, nil
	case "count_unique_groups":
		return CountUniqueGroups{Unit: s.Unit}, nil
	case "static":
		return Static{Text: s.Text}, nil
	default:
		return nil, fmt.Errorf("panel stat %q: unknown kind %q", s.Label, s.Kind)
	}
}

func (i insightYAML) insight() (Insight, error) {
	switch i.Kind {
	case "mean":
		return Mean{Column: i.Column}, nil
	case "max_group_avg":
		return MaxGroupAverage{ValueColumn: i.ValueColumn, GroupColumn: i.GroupColumn}, nil
	default:
		return nil, fmt.Errorf("insight %q: unknown kind %q", i.Label, i.Kind)
	}
}

func encodeDescriptor(d Descriptor) descriptorYAML {
	p := descriptorYAML{
		Slug:  d.Slug,
		Title: d.Title,
		Table: d.Table,
		X:     axisYAML{Column: d.XColumn, Label: d.XLabel},
		Y:     axisYAML{Column: d.YColumn, Label: d.YLabel},
		Group: axisYAML{Column: d.GroupColumn},
		Headings: headingsYAML{
			Analysis: d.AnalysisHeading,
			Groups:   d.GroupHeading,
			Panel:    d.PanelHeading,
			Insights: d.InsightsHeading,
		},
		Empty: emptyYAML{Message: d.EmptyMessage, Hint: d.EmptyHint},
	}
	for _, entry := range d.Panel {
		stat := statYAML{Label: entry.Label, Kind: entry.Stat.Kind()}
		switch typed := entry.Stat.(type) {
		case CountUniqueGroups:
			stat.Unit = typed.Unit
		case Static:
			stat.Text = typed.Text
		}
		p.Panel = append(p.Panel, stat)
	}
	for _, entry := range d.Insights {
		insight := insightYAML{Label: entry.Label, Kind: entry.Insight.Kind()}
		switch typed := entry.Insight.(type) {
		case Mean:
			insight.Column = typed.Column
		case MaxGroupAverage:
			insight.ValueColumn = typed.ValueColumn
			insight.GroupColumn = typed.GroupColumn
		}
		p.Insights = append(p.Insights, insight)
	}
	return p
}
