// Prompt templates are stored as text files under prompts/ and embedded at
// compile time.

package assets

import (
	"bytes"
	_ "embed"
	"strings"
	"text/template"
)

//go:embed prompts/subject-style.txt
var subjectStyleTemplate string

//go:embed prompts/background-style.txt
var backgroundStyleTemplate string

// template.Must panics on malformed templates, catching errors at program
// startup rather than at call time.
var (
	subjectPromptTmpl    = template.Must(template.New("subject").Parse(subjectStyleTemplate))
	backgroundPromptTmpl = template.Must(template.New("background").Parse(backgroundStyleTemplate))
)

// PromptData holds the dynamic data injected into prompt templates.
type PromptData struct {
	// StylePrompt is the catalog entry's prompt.
	StylePrompt string
	// AspectRatio is the canvas ratio, e.g. "3:4". Only used for backgrounds.
	AspectRatio string
}

// RenderSubjectPrompt wraps a subject-style prompt with the instructions
// shared by every per-photo request.
func RenderSubjectPrompt(stylePrompt string) string {
	return renderTemplate(subjectPromptTmpl, PromptData{StylePrompt: stylePrompt})
}

// RenderBackgroundPrompt wraps a background-style prompt for a canvas of the
// given aspect ratio.
func RenderBackgroundPrompt(stylePrompt, aspectRatio string) string {
	return renderTemplate(backgroundPromptTmpl, PromptData{StylePrompt: stylePrompt, AspectRatio: aspectRatio})
}

func renderTemplate(tmpl *template.Template, data PromptData) string {
	var buf bytes.Buffer
	// Execution errors are not expected with these templates; whatever was
	// rendered is returned.
	_ = tmpl.Execute(&buf, data)
	return strings.TrimSpace(buf.String())
}
