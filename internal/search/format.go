package search

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// OutputFormat specifies how results are printed.
type OutputFormat string

const (
	FormatDefault OutputFormat = "default"
	FormatJSON    OutputFormat = "json"
	FormatCompact OutputFormat = "compact"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", FormatDefault:
		return FormatDefault, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatCompact:
		return FormatCompact, nil
	}
	return "", fmt.Errorf("unknown format %q (use default, json or compact)", s)
}

var (
	idStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	textStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	linkStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// FormatResults renders results in the given format.
func FormatResults(results []Result, format OutputFormat) string {
	switch format {
	case FormatJSON:
		return formatJSON(results)
	case FormatCompact:
		return formatCompact(results)
	default:
		return formatDefault(results)
	}
}

func formatDefault(results []Result) string {
	if len(results) == 0 {
		return "No results found.\n"
	}

	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s %s\n",
			idStyle.Render(fmt.Sprintf("#%d", r.ID)),
			dimStyle.Render(fmt.Sprintf("score %.3f  distance %.4f", r.Score, r.Distance)))
		for _, line := range strings.Split(r.Text, "\n") {
			sb.WriteString("  ")
			sb.WriteString(textStyle.Render(line))
			sb.WriteString("\n")
		}
		for _, l := range r.Links {
			sb.WriteString("  ")
			sb.WriteString(linkStyle.Render(l))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func formatJSON(results []Result) string {
	if results == nil {
		results = []Result{}
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}\n", err.Error())
	}
	return string(data) + "\n"
}

// formatCompact writes one tab separated line per result: id, score, text, links.
func formatCompact(results []Result) string {
	var sb strings.Builder
	for _, r := range results {
		text := strings.ReplaceAll(r.Text, "\n", " ")
		fmt.Fprintf(&sb, "%d\t%.3f\t%s\t%s\n", r.ID, r.Score, text, strings.Join(r.Links, ","))
	}
	return sb.String()
}
