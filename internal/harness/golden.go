package harness

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/deckd/internal/profile"
)

// Snapshot renders a result as JSON lines: a header with the scenario name,
// the fake clock's elapsed time and the opened URLs, then one line per sent
// message. Every line is canonical JSON.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	var buf bytes.Buffer

	opened := result.Opened
	if opened == nil {
		opened = []string{}
	}
	header, err := profile.MarshalCanonical(map[string]any{
		"scenario":   scenarioName,
		"elapsed_ms": result.Elapsed.Milliseconds(),
		"opened":     opened,
	})
	if err != nil {
		return nil, err
	}
	buf.Write(header)
	buf.WriteByte('\n')

	for _, ev := range result.Trace {
		line, err := profile.MarshalCanonical(map[string]any{
			"seq":    ev.Seq,
			"target": ev.Target,
			"to":     ev.To,
			"body":   ev.Body,
		})
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	return buf.Bytes(), nil
}

// RunWithGolden runs scenario and compares its snapshot with
// testdata/golden/<name>.golden. Refresh the files with
//
//	go test ./internal/harness -update
//
// The error is non-nil only when the scenario could not be run.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()
	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result's snapshot with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()
	snapshot, err := Snapshot(name, result)
	if err != nil {
		return err
	}
	goldie.New(t,
		goldie.WithFixtureDir(filepath.Join("testdata", "golden")),
		goldie.WithNameSuffix(".golden"),
	).Assert(t, name, snapshot)
	return nil
}
