package storage

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ExportMarkdown renders runs as a markdown document, newest first.
func ExportMarkdown(runs []Run) string {
	var b strings.Builder

	b.WriteString("# Run history\n\n")
	for _, r := range runs {
		b.WriteString(fmt.Sprintf("## %s\n\n", r.ID))
		b.WriteString(fmt.Sprintf("- **Status:** %s\n", r.Status))
		b.WriteString(fmt.Sprintf("- **Source:** %s\n", r.Source))
		b.WriteString(fmt.Sprintf("- **Created:** %s\n", r.CreatedAt.Format("2006-01-02 15:04:05")))
		b.WriteString(fmt.Sprintf("- **Duration:** %dms\n", r.DurationMS))
		b.WriteString(fmt.Sprintf("- **Outputs:** %d text, %d image\n", r.TextItems, r.ImageItems))
		if r.Error != "" {
			b.WriteString(fmt.Sprintf("- **Error:** `%s`\n", r.Error))
		}
		b.WriteString(fmt.Sprintf("\n```python\n%s\n```\n\n", strings.TrimRight(r.Code, "\n")))
	}

	return b.String()
}

// ExportJSON renders runs as formatted JSON.
func ExportJSON(runs []Run) ([]byte, error) {
	export := struct {
		Runs []Run `json:"runs"`
	}{
		Runs: runs,
	}
	return json.MarshalIndent(export, "", "  ")
}

// ExportYAML renders runs as YAML.
func ExportYAML(runs []Run) ([]byte, error) {
	export := struct {
		Runs []Run `yaml:"runs"`
	}{
		Runs: runs,
	}
	return yaml.Marshal(export)
}

// Export renders runs in the named format: md, json or yaml.
func Export(runs []Run, format string) ([]byte, error) {
	switch format {
	case "", "md", "markdown":
		return []byte(ExportMarkdown(runs)), nil
	case "json":
		return ExportJSON(runs)
	case "yaml", "yml":
		return ExportYAML(runs)
	default:
		return nil, fmt.Errorf("unknown export format: %s", format)
	}
}
