package scenario

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/ouc-computer-network/tcp-lab/internal/protocol"
	"github.com/ouc-computer-network/tcp-lab/internal/report"
)

// RunWithGolden executes a scenario and compares the canonical report
// JSON against a golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/scenario -update
//
// Golden files are the regression surface for the determinism contract:
// re-running the same (seed, config, scenario, protocol) must byte-match
// the stored report.
func RunWithGolden(t *testing.T, scn *Scenario, pair protocol.Pair) *report.Report {
	t.Helper()

	rep := Run(scn, pair)
	AssertGolden(t, scn.Name, rep)
	return rep
}

// AssertGolden compares an already-produced report against the golden
// file for scenarioName.
func AssertGolden(t *testing.T, scenarioName string, rep *report.Report) {
	t.Helper()

	data, err := report.MarshalCanonical(rep)
	if err != nil {
		t.Fatalf("marshal report: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
}
