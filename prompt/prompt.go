// Package prompt renders the system prompts of the workflow agents.
package prompt

import (
	"bytes"
	"embed"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Name identifies a prompt template.
type Name string

const (
	Coordinator Name = "coordinator"
	Planner     Name = "planner"
	Researcher  Name = "researcher"
	Coder       Name = "coder"
	Reporter    Name = "reporter"
)

//go:embed templates/*.md
var templateFS embed.FS

var templates = template.Must(template.New("prompt").ParseFS(templateFS, "templates/*.md"))

// ErrUnknownPrompt is returned for a name without a template.
var ErrUnknownPrompt = goerr.New("unknown prompt template")

// ToolInfo describes an additional tool listed in a worker prompt.
type ToolInfo struct {
	Name        string
	Description string
}

// Data is the set of variables available to every template.
type Data struct {
	CurrentTime string
	Locale      string
	MaxStepNum  int
	ReportStyle string
	ExtraTools  []ToolInfo
}

// TimeFormat is the layout of CurrentTime.
const TimeFormat = "Mon Jan 02 2006 15:04:05 -0700"

// Render executes the named template. CurrentTime is filled with the current
// time when empty.
func Render(name Name, data Data) (string, error) {
	tmpl := templates.Lookup(string(name) + ".md")
	if tmpl == nil {
		return "", goerr.Wrap(ErrUnknownPrompt, "template not found", goerr.V("name", name))
	}

	if data.CurrentTime == "" {
		data.CurrentTime = time.Now().Format(TimeFormat)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to render prompt", goerr.V("name", name))
	}
	return buf.String(), nil
}
