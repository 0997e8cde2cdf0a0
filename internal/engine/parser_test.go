package engine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadFlowSpec_JSON(t *testing.T) {
	path := writeFile(t, "flow.json", `{
  "name": "myAmazingFlow",
  "owner": "ignored",
  "flows": {
    "firstFlow": {
      "jobs": [{ "location": "/Projects/job1" }, { "location": "/Projects/job2" }],
      "predecessors": []
    },
    "secondFlow": {
      "jobs": [{ "location": "/Projects/job11" }],
      "predecessors": ["firstFlow"]
    }
  }
}`)

	spec, err := LoadFlowSpec(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if spec.Name != "myAmazingFlow" {
		t.Errorf("expected name myAmazingFlow, got %s", spec.Name)
	}
	if len(spec.Flows) != 2 {
		t.Fatalf("expected 2 flows, got %d", len(spec.Flows))
	}
	if len(spec.Flows["firstFlow"].Jobs) != 2 {
		t.Errorf("expected 2 jobs in firstFlow")
	}
	if got := spec.Flows["secondFlow"].Predecessors; len(got) != 1 || got[0] != "firstFlow" {
		t.Errorf("unexpected predecessors: %v", got)
	}
}

func TestLoadFlowSpec_YAML(t *testing.T) {
	path := writeFile(t, "flow.yml", `
flows:
  extract:
    jobs:
      - location: jobs/extract
  load:
    jobs:
      - location: /Public/load
    predecessors: [extract]
`)

	spec, err := LoadFlowSpec(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.Flows["extract"].Jobs[0].Location != "jobs/extract" {
		t.Errorf("unexpected location %q", spec.Flows["extract"].Jobs[0].Location)
	}
	if !spec.Flows["load"].HasPredecessor("extract") {
		t.Error("load should depend on extract")
	}
}

func TestLoadFlowSpec_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
		want error
	}{
		{
			name: "empty path",
			path: func(t *testing.T) string { return "" },
			want: ErrSourceNotFound,
		},
		{
			name: "unsupported extension",
			path: func(t *testing.T) string { return writeFile(t, "flow.txt", `{"flows":{}}`) },
			want: ErrUnsupportedFileType,
		},
		{
			name: "missing file",
			path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.json") },
			want: ErrSourceNotFound,
		},
		{
			name: "malformed json",
			path: func(t *testing.T) string { return writeFile(t, "flow.json", `{"flows": `) },
			want: ErrMalformedSource,
		},
		{
			name: "trailing garbage after json",
			path: func(t *testing.T) string { return writeFile(t, "flow.json", `{"flows": {}} xyz`) },
			want: ErrMalformedSource,
		},
		{
			name: "second json document",
			path: func(t *testing.T) string { return writeFile(t, "flow.json", `{"flows": {}} {"flows": {}}`) },
			want: ErrMalformedSource,
		},
		{
			name: "missing flows key",
			path: func(t *testing.T) string { return writeFile(t, "flow.json", `{"name": "x"}`) },
			want: ErrMissingFlows,
		},
		{
			name: "null flows",
			path: func(t *testing.T) string { return writeFile(t, "flow.yaml", "flows: null\n") },
			want: ErrMissingFlows,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFlowSpec(tt.path(t))
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}

			var inErr *InputError
			if !errors.As(err, &inErr) {
				t.Errorf("expected InputError, got %T", err)
			}
		})
	}
}

func TestParseFlowSpec_NullFlowDefinition(t *testing.T) {
	spec, err := ParseFlowSpec([]byte(`{"flows": {"empty": null}}`), FormatJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.Flows["empty"] == nil {
		t.Fatal("null flow definition should be replaced by an empty one")
	}
	if !errors.Is(BuildGraph(spec).Err(), ErrNoJobs) {
		t.Error("empty flow should fail validation with ErrNoJobs")
	}
}

func TestDetectFormat(t *testing.T) {
	tests := map[string]string{
		"flow.json":    FormatJSON,
		"FLOW.JSON":    FormatJSON,
		"flow.yaml":    FormatYAML,
		"a/b/flow.yml": FormatYAML,
	}
	for path, want := range tests {
		got, err := DetectFormat(path)
		if err != nil || got != want {
			t.Errorf("DetectFormat(%q) = %q, %v; want %q", path, got, err, want)
		}
	}

	if _, err := DetectFormat("flow.csv"); !errors.Is(err, ErrUnsupportedFileType) {
		t.Errorf("expected ErrUnsupportedFileType, got %v", err)
	}
}
