package llm

import (
	"fmt"
	"strings"

	"github.com/jqb69/darkseek/pkg/search"
)

const promptPreamble = "You are a helpful AI assistant that provides concise answers based on the given context."

// BuildPrompt concatenates the instruction preamble, one context line per
// search result and the user query.
func BuildPrompt(query string, results []search.Result) string {
	var b strings.Builder
	b.WriteString(promptPreamble)
	b.WriteString("\nContext: ")
	for i, result := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Source %d: %s - %s", i+1, result.Title, result.Snippet)
	}
	b.WriteString("\nQuery: ")
	b.WriteString(query)
	b.WriteString("\nConcise Answer:")
	return b.String()
}
