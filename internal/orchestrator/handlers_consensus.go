package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/randalmurphal/popeye/internal/artifact"
	"github.com/randalmurphal/popeye/internal/gate"
	"github.com/randalmurphal/popeye/internal/packet"
	"github.com/randalmurphal/popeye/internal/pipeline"
	"github.com/randalmurphal/popeye/internal/snapshot"
)

// handleConsensus runs one structured consensus round for the current phase:
// it assembles the plan packet, fans out to the reviewers, stores the
// consensus packet, and writes the weighted and simple scores into the gate
// results. The gate engine reads those scores; it never recomputes them.
func handleConsensus(ctx context.Context, pc *PhaseContext) PhaseResult {
	phase := pc.State.PipelinePhase

	def, ok := gate.DefinitionFor(phase)
	if !ok || !def.HasConsensus() {
		return failure(phase, fmt.Errorf("phase %s has no consensus gate", phase))
	}

	plan, err := buildPlanPacket(pc, phase)
	if err != nil {
		return failure(phase, err)
	}

	pkt, err := pc.Consensus.Run(ctx, plan, def)
	if err != nil {
		return failure(phase, err)
	}

	entry, err := pc.Artifacts.CreateAndStoreJSON(pipeline.TypeConsensus, pkt, phase, "")
	if err != nil {
		return failure(phase, err)
	}
	ids := pc.record(entry)

	// The approved role plans freeze the reviewed scope; capture the tree
	// here so REVIEW can diff implementation drift against it.
	if phase == pipeline.PhaseConsensusRolePlans {
		snap, err := snapshot.Generate(pc.ProjectDir)
		if err != nil {
			return failure(phase, err)
		}
		snapEntry, err := pc.Artifacts.CreateAndStoreJSON(pipeline.TypeRepoSnapshot, snap, phase, "")
		if err != nil {
			return failure(phase, err)
		}
		ids = append(ids, pc.record(snapEntry)...)
		pc.State.LatestRepoSnapshot = snap
	}

	weighted := pkt.Result.WeightedScore
	simple := pkt.Result.Score
	pc.State.GateResults[phase] = pipeline.GateResult{
		Phase:            phase,
		Score:            &weighted,
		ConsensusScore:   &simple,
		Blockers:         []string{},
		MissingArtifacts: []string{},
		FailedChecks:     []string{},
		Timestamp:        time.Now().UTC(),
	}

	return PhaseResult{
		Phase:     phase,
		Success:   true,
		Artifacts: ids,
		Message: fmt.Sprintf("consensus %s: score %.2f, weighted %.2f, %d votes",
			pkt.FinalStatus, simple, weighted, len(pkt.Votes)),
	}
}

// buildPlanPacket assembles the review packet for a consensus phase. Each
// phase proposes the artifacts produced by the planning phase it reviews.
func buildPlanPacket(pc *PhaseContext, phase pipeline.Phase) (packet.PlanPacket, error) {
	b := packet.NewPlan(phase, submitterFor(phase))

	if e, ok := pc.State.LatestArtifact(pipeline.TypeMasterPlan); ok {
		b.WithMasterPlan(artifact.ToArtifactRef(e))
	}
	if e, ok := pc.State.LatestArtifact(pipeline.TypeConstitution); ok {
		b.WithConstitution(artifact.ToArtifactRef(e))
	}
	if e, ok := pc.State.LatestArtifact(pipeline.TypeRepoSnapshot); ok {
		b.WithRepoSnapshot(artifact.ToArtifactRef(e))
	}

	switch phase {
	case pipeline.PhaseConsensusMasterPlan:
		e, ok := pc.State.LatestArtifactInPhase(pipeline.TypeMasterPlan, pipeline.PhaseIntake)
		if !ok {
			return packet.PlanPacket{}, fmt.Errorf("no master plan to review")
		}
		b.Propose(artifact.ToArtifactRef(e)).
			AcceptWhen("Goals, scope boundaries, and deliverables are explicit",
				"Every participating role is named")

	case pipeline.PhaseConsensusArchitecture:
		e, ok := pc.State.LatestArtifactInPhase(pipeline.TypeArchitecture, pipeline.PhaseArchitecture)
		if !ok {
			return packet.PlanPacket{}, fmt.Errorf("no architecture document to review")
		}
		b.Propose(artifact.ToArtifactRef(e)).
			AcceptWhen("Every component traces to a master plan goal",
				"Data flow and storage choices are justified")

	case pipeline.PhaseConsensusRolePlans:
		plans := plansInPhase(pc.State, pipeline.PhaseRolePlanning)
		if len(plans) == 0 {
			return packet.PlanPacket{}, fmt.Errorf("no role plans to review")
		}
		for _, e := range plans {
			b.Propose(artifact.ToArtifactRef(e))
			b.DependsOn(e.ID)
		}
		b.AcceptWhen("Each plan carries tasks, dependencies, and acceptance criteria",
			"Cross-role dependencies are acyclic")

	default:
		return packet.PlanPacket{}, fmt.Errorf("phase %s is not a consensus phase", phase)
	}

	return b.Build(), nil
}

// submitterFor names the role whose output a consensus phase reviews.
func submitterFor(phase pipeline.Phase) pipeline.Role {
	if phase == pipeline.PhaseConsensusArchitecture {
		return pipeline.RoleArchitect
	}
	return pipeline.RoleDispatcher
}

func plansInPhase(state *pipeline.State, phase pipeline.Phase) []pipeline.ArtifactEntry {
	var out []pipeline.ArtifactEntry
	for _, e := range state.Artifacts {
		if e.Type == pipeline.TypeRolePlan && e.Phase == phase {
			out = append(out, e)
		}
	}
	return out
}
