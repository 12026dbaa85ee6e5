package model

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// taskHeader is the YAML front-matter layout of a task file. The header's
// status field is the single source of truth for lifecycle state.
type taskHeader struct {
	ID         string   `yaml:"id"`
	Title      string   `yaml:"title"`
	Type       string   `yaml:"type,omitempty"`
	Priority   string   `yaml:"priority"`
	Order      *int     `yaml:"order,omitempty"`
	DependsOn  []string `yaml:"depends_on"`
	Status     string   `yaml:"status"`
	Owner      string   `yaml:"owner"`
	Estimate   string   `yaml:"estimate"`
	Acceptance []string `yaml:"acceptance"`
	AutoPolicy string   `yaml:"auto_policy"`
}

const frontMatterDelim = "---"

// ParseTaskFile decodes a task document: a YAML front-matter header between
// "---" delimiter lines followed by free-form markdown. path is recorded on
// the returned task so the integrator can rewrite the same file.
func ParseTaskFile(path string, data []byte) (Task, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(text, frontMatterDelim+"\n") {
		return Task{}, fmt.Errorf("task file %s: missing front matter", path)
	}

	rest := text[len(frontMatterDelim)+1:]
	idx := strings.Index(rest, "\n"+frontMatterDelim+"\n")
	var header, body string
	if idx >= 0 {
		header = rest[:idx]
		body = rest[idx+len(frontMatterDelim)+2:]
	} else if strings.HasSuffix(rest, "\n"+frontMatterDelim) {
		header = rest[:len(rest)-len(frontMatterDelim)-1]
	} else {
		return Task{}, fmt.Errorf("task file %s: unterminated front matter", path)
	}

	var h taskHeader
	if err := yaml.Unmarshal([]byte(header), &h); err != nil {
		return Task{}, fmt.Errorf("task file %s: parse header: %w", path, err)
	}
	if h.ID == "" {
		return Task{}, fmt.Errorf("task file %s: header missing id", path)
	}

	status := h.Status
	if status == "" {
		status = string(StatusQueued)
	}
	if !ValidStatus(status) {
		return Task{}, fmt.Errorf("task file %s: unknown status %q", path, status)
	}
	priority := h.Priority
	if priority == "" {
		priority = "P2"
	}

	return Task{
		ID:         h.ID,
		Title:      h.Title,
		Status:     TaskStatus(status),
		Priority:   priority,
		Order:      h.Order,
		DependsOn:  h.DependsOn,
		Owner:      h.Owner,
		Estimate:   h.Estimate,
		Acceptance: h.Acceptance,
		AutoPolicy: h.AutoPolicy,
		Path:       path,
		Body:       strings.TrimLeft(body, "\n"),
	}, nil
}

// Document renders the task back into its file representation.
func (t Task) Document() ([]byte, error) {
	h := taskHeader{
		ID:         t.ID,
		Title:      t.Title,
		Priority:   t.Priority,
		Order:      t.Order,
		DependsOn:  t.DependsOn,
		Status:     string(t.Status),
		Owner:      t.Owner,
		Estimate:   t.Estimate,
		Acceptance: t.Acceptance,
		AutoPolicy: t.AutoPolicy,
	}
	if h.DependsOn == nil {
		h.DependsOn = []string{}
	}
	if h.Acceptance == nil {
		h.Acceptance = []string{}
	}

	header, err := yaml.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("render task %s: %w", t.ID, err)
	}

	var b strings.Builder
	b.WriteString(frontMatterDelim + "\n")
	b.Write(header)
	b.WriteString(frontMatterDelim + "\n")
	if t.Body != "" {
		b.WriteString("\n")
		b.WriteString(t.Body)
		if !strings.HasSuffix(t.Body, "\n") {
			b.WriteString("\n")
		}
	}
	return []byte(b.String()), nil
}

var statusLinePattern = regexp.MustCompile(`(?m)^status:\s*\S+`)

// ReplaceStatus rewrites the status field of a task document in place,
// leaving the rest of the file byte-identical. This is the mutation the
// Integrator pushes when a task's PR merges.
func ReplaceStatus(doc []byte, to TaskStatus) []byte {
	return statusLinePattern.ReplaceAll(doc, []byte("status: "+string(to)))
}
