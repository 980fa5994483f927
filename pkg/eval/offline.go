package eval

import (
	"bytes"
	"embed"
	"encoding/json"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"text/template"

	"github.com/wilhg/agentcore/pkg/errmodel"
)

// Sample is one evaluation case. Prompt may be a text/template rendered with
// Vars before generation.
type Sample struct {
	Name     string         `json:"name,omitempty"`
	Prompt   string         `json:"prompt"`
	Vars     map[string]any `json:"vars,omitempty"`
	Expected string         `json:"expected"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

//go:embed datasets/*.json
var builtin embed.FS

// Builtins lists the names accepted by Builtin.
func Builtins() []string {
	entries, _ := fs.ReadDir(builtin, "datasets")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names
}

// Builtin returns a bundled dataset, truncated to size when size > 0.
func Builtin(name string, size int) ([]Sample, error) {
	b, err := builtin.ReadFile("datasets/" + name + ".json")
	if err != nil {
		return nil, errmodel.Value("unknown_dataset", "unknown dataset "+name+"; expected one of "+strings.Join(Builtins(), ", "),
			map[string]any{"dataset": name, "allowed": Builtins()})
	}
	samples, err := decodeDataset(b, name)
	if err != nil {
		return nil, err
	}
	if size > 0 && size < len(samples) {
		samples = samples[:size]
	}
	return samples, nil
}

// LoadDataset reads a JSON dataset file: either an array of samples or an
// object with a "test_cases" array.
func LoadDataset(p string) ([]Sample, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, errmodel.Load("dataset_unreadable", "cannot read dataset", map[string]any{"path": p}, err)
	}
	return decodeDataset(b, p)
}

// LoadFixtures reads every *.json file in dir as one sample, in file name order.
func LoadFixtures(fsys fs.FS, dir string) ([]Sample, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, errmodel.Load("fixtures_unreadable", "cannot list fixtures", map[string]any{"dir": dir}, err)
	}
	var out []Sample
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		p := path.Join(dir, e.Name())
		b, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, errmodel.Load("fixtures_unreadable", "cannot read fixture", map[string]any{"path": p}, err)
		}
		var s Sample
		if err := json.Unmarshal(b, &s); err != nil {
			return nil, errmodel.Load("invalid_fixture", "fixture is not a JSON sample", map[string]any{"path": p}, err)
		}
		if s.Name == "" {
			s.Name = strings.TrimSuffix(e.Name(), ".json")
		}
		out = append(out, s)
	}
	return out, nil
}

// SaveDataset writes samples in the {"test_cases": [...]} form.
func SaveDataset(p string, samples []Sample) error {
	b, err := json.MarshalIndent(map[string]any{
		"test_cases": samples,
		"metadata":   map[string]any{"total_cases": len(samples)},
	}, "", "  ")
	if err != nil {
		return errmodel.System("encode_failed", "cannot encode dataset", nil, err)
	}
	if err := os.WriteFile(p, append(b, '\n'), 0o644); err != nil {
		return errmodel.System("write_failed", "cannot write dataset", map[string]any{"path": p}, err)
	}
	return nil
}

func decodeDataset(b []byte, where string) ([]Sample, error) {
	b = bytes.TrimSpace(b)
	var samples []Sample
	if len(b) > 0 && b[0] == '[' {
		if err := json.Unmarshal(b, &samples); err != nil {
			return nil, errmodel.Load("invalid_dataset", "dataset is not a JSON array of samples", map[string]any{"source": where}, err)
		}
		return samples, nil
	}
	var wrapped struct {
		TestCases *[]Sample `json:"test_cases"`
	}
	if err := json.Unmarshal(b, &wrapped); err != nil || wrapped.TestCases == nil {
		return nil, errmodel.Load("invalid_dataset", "dataset must be an array or an object with test_cases", map[string]any{"source": where}, err)
	}
	return *wrapped.TestCases, nil
}

// render expands the prompt template. Missing variables are errors.
func render(tpl string, vars map[string]any) (string, error) {
	if len(vars) == 0 && !strings.Contains(tpl, "{{") {
		return tpl, nil
	}
	t, err := template.New("p").Option("missingkey=error").Parse(tpl)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := t.Execute(&b, vars); err != nil {
		return "", err
	}
	return b.String(), nil
}
