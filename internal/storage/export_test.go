package storage

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func sampleRuns() []Run {
	return []Run{{
		ID:         "run-1",
		Source:     SourceHTTP,
		Status:     StatusFailed,
		Error:      "name 'x' is not defined",
		Code:       "print(x)\n",
		TextItems:  0,
		ImageItems: 1,
		DurationMS: 12,
		CreatedAt:  time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}}
}

func TestExportMarkdown(t *testing.T) {
	md := ExportMarkdown(sampleRuns())
	for _, want := range []string{
		"## run-1",
		"- **Status:** failed",
		"- **Outputs:** 0 text, 1 image",
		"- **Error:** `name 'x' is not defined`",
		"```python\nprint(x)\n```",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestExportJSON(t *testing.T) {
	data, err := Export(sampleRuns(), "json")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	var got struct {
		Runs []Run `json:"runs"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Runs) != 1 || got.Runs[0].Status != StatusFailed {
		t.Errorf("got %+v", got)
	}
}

func TestExportYAML(t *testing.T) {
	data, err := Export(sampleRuns(), "yaml")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	var got map[string][]map[string]any
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["runs"][0]["image_items"] != 1 {
		t.Errorf("image_items = %v", got["runs"][0]["image_items"])
	}
}

func TestExportUnknownFormat(t *testing.T) {
	if _, err := Export(sampleRuns(), "csv"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
