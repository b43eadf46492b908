package schema

import (
	"fmt"
	"strings"
)

// OutputRecord is the final structured answer of a web search run
type OutputRecord struct {
	// Title is a markdown heading naming the topic of the answer
	Title string `json:"title" jsonschema:"title=title,description=A markdown heading that names the topic of the answer (for example '# Topic X')." validate:"required"`
	// Body is the free-form answer text
	Body string `json:"body" jsonschema:"title=body,description=The detailed answer in markdown based on the search results." validate:"required"`
	// SummaryPoints is the list of key points of the answer
	SummaryPoints string `json:"summary_points" jsonschema:"title=summary_points,description=The key points of the answer as markdown bullets. One point per line." validate:"required"`
}

func (r OutputRecord) String() string {
	return Stringify(r)
}

// Markdown renders the record as a markdown document
func (r OutputRecord) Markdown() string {
	title := strings.TrimSpace(r.Title)
	if !strings.HasPrefix(title, "#") {
		title = fmt.Sprintf("# %s", title)
	}
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(r.Body))
	b.WriteString("\n\n## Summary\n\n")
	b.WriteString(strings.TrimSpace(r.SummaryPoints))
	b.WriteString("\n")
	return b.String()
}
