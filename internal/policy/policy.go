// Package policy holds the versioned research policy: prompts, good and bad
// query patterns, and the confidence rules the extractor applies. The policy
// is data, reviewed like code, and can be overridden and hot-reloaded from
// a YAML file.
package policy

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var defaultPolicy []byte

// Policy is a parsed, template-checked research policy.
type Policy struct {
	Version      string             `yaml:"version"`
	SearchTool   SearchToolText     `yaml:"search_tool"`
	Research     StagePrompts       `yaml:"research"`
	Metadata     ExtractionText     `yaml:"metadata"`
	People       PeoplePolicy       `yaml:"people"`
	Extraction   ExtractionPolicy   `yaml:"extraction"`
	Revalidation RevalidationPolicy `yaml:"revalidation"`

	tmpl *template.Template
}

// SearchToolText describes the search tool to the model.
type SearchToolText struct {
	Name                  string `yaml:"name"`
	Description           string `yaml:"description"`
	QueryDescription      string `yaml:"query_description"`
	NumResultsDescription string `yaml:"num_results_description"`
}

// StagePrompts is a system/user prompt pair for a tool-calling stage.
type StagePrompts struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// ExtractionText configures a constrained-output extraction call.
type ExtractionText struct {
	ToolName        string `yaml:"tool_name"`
	ToolDescription string `yaml:"tool_description"`
	Prompt          string `yaml:"prompt"`
}

// PeoplePolicy configures the people-finding stage.
type PeoplePolicy struct {
	StagePrompts    `yaml:",inline"`
	GoodQueries     []string `yaml:"good_queries"`
	BadQueries      []string `yaml:"bad_queries"`
	StartingQueries []string `yaml:"starting_queries"`
}

// ConfidenceRules define when a person is high, medium or low confidence.
type ConfidenceRules struct {
	High   string `yaml:"high"`
	Medium string `yaml:"medium"`
	Low    string `yaml:"low"`
}

// ExtractionPolicy configures people extraction and scoring.
type ExtractionPolicy struct {
	ExtractionText `yaml:",inline"`
	Priority       []string        `yaml:"priority"`
	Exclude        []string        `yaml:"exclude"`
	Confidence     ConfidenceRules `yaml:"confidence"`
}

// RevalidationPolicy configures the targeted revalidation pass.
type RevalidationPolicy struct {
	TargetedQueries []string `yaml:"targeted_queries"`
	Prompt          string   `yaml:"prompt"`
	Reextract       string   `yaml:"reextract"`
}

// Default returns the embedded policy. It panics if the embedded document is
// invalid, which is a build defect.
func Default() *Policy {
	p, err := Parse(defaultPolicy)
	if err != nil {
		panic(fmt.Sprintf("policy: embedded policy invalid: %v", err))
	}
	return p
}

// Load reads and parses a policy file. An empty path returns the default.
func Load(path string) (*Policy, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "policy: read %s", path)
	}
	return Parse(data)
}

// Parse decodes a policy document and compiles every template in it.
func Parse(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrap(err, "policy: decode")
	}
	if strings.TrimSpace(p.Version) == "" {
		return nil, eris.New("policy: version is required")
	}
	if p.SearchTool.Name == "" || p.Metadata.ToolName == "" || p.Extraction.ToolName == "" {
		return nil, eris.New("policy: tool names are required")
	}

	root := template.New("policy").Funcs(template.FuncMap{
		"inc":  func(i int) int { return i + 1 },
		"join": strings.Join,
	}).Option("missingkey=error")

	texts := map[string]string{
		"research.system":     p.Research.System,
		"research.user":       p.Research.User,
		"metadata.prompt":     p.Metadata.Prompt,
		"people.system":       p.People.System,
		"people.user":         p.People.User,
		"extraction.prompt":   p.Extraction.Prompt,
		"extraction.high":     p.Extraction.Confidence.High,
		"extraction.medium":   p.Extraction.Confidence.Medium,
		"extraction.low":      p.Extraction.Confidence.Low,
		"revalidation.prompt": p.Revalidation.Prompt,
		"revalidation.reextr": p.Revalidation.Reextract,
	}
	addList(texts, "people.good", p.People.GoodQueries)
	addList(texts, "people.bad", p.People.BadQueries)
	addList(texts, "people.start", p.People.StartingQueries)
	addList(texts, "revalidation.queries", p.Revalidation.TargetedQueries)

	for name, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, eris.Errorf("policy: %s is empty", name)
		}
		if _, err := root.New(name).Parse(text); err != nil {
			return nil, eris.Wrapf(err, "policy: parse %s", name)
		}
	}
	p.tmpl = root
	return &p, nil
}

func addList(texts map[string]string, prefix string, items []string) {
	for i, item := range items {
		texts[fmt.Sprintf("%s.%d", prefix, i)] = item
	}
}
