package checks

import (
	"fmt"

	"github.com/randalmurphal/popeye/internal/artifact"
	"github.com/randalmurphal/popeye/internal/pipeline"
)

// checkArtifactTypes maps a check type to its stored artifact type.
var checkArtifactTypes = map[pipeline.CheckType]pipeline.ArtifactType{
	pipeline.CheckBuild:           pipeline.TypeBuildCheck,
	pipeline.CheckTest:            pipeline.TypeTestCheck,
	pipeline.CheckLint:            pipeline.TypeLintCheck,
	pipeline.CheckTypecheck:       pipeline.TypeTypecheckCheck,
	pipeline.CheckPlaceholderScan: pipeline.TypePlaceholderScan,
}

// storedCheck is the persisted payload for a check artifact: the result
// record plus the full captured stdout.
type storedCheck struct {
	Result pipeline.GateCheckResult `json:"result"`
	Stdout string                   `json:"stdout,omitempty"`
}

// StoreResults persists each outcome as a typed check artifact and links the
// result to it through stdout_artifact. Checks without a mapped artifact
// type (migration, env, start) stay on the state only. Returns the updated
// results and the created entries.
func StoreResults(mgr *artifact.Manager, phase pipeline.Phase, outcomes []Outcome) ([]pipeline.GateCheckResult, []pipeline.ArtifactEntry, error) {
	results := make([]pipeline.GateCheckResult, len(outcomes))
	var entries []pipeline.ArtifactEntry

	for i, o := range outcomes {
		results[i] = o.Result
		at, ok := checkArtifactTypes[o.Result.CheckType]
		if !ok || o.Result.Status == pipeline.CheckSkip {
			continue
		}
		entry, err := mgr.CreateAndStoreJSON(at, storedCheck{Result: o.Result, Stdout: o.Stdout}, phase, "")
		if err != nil {
			return nil, nil, fmt.Errorf("store %s check result: %w", o.Result.CheckType, err)
		}
		results[i].StdoutArtifact = entry.ID
		entries = append(entries, entry)
	}
	return results, entries, nil
}
