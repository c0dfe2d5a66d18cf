package artifact

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/randalmurphal/popeye/internal/pipeline"
)

const (
	// DocsDir is the root of the artifact tree under the project directory.
	DocsDir = "docs"
	// MetaDir holds one metadata sidecar per artifact. Enumeration reads
	// this directory only; orphan payload files are ignored.
	MetaDir = ".artifacts"
	// IndexFile is the human-readable artifact index.
	IndexFile = "INDEX.md"
)

// typeSubdirs maps each artifact type to its fixed subdirectory under docs/.
var typeSubdirs = map[pipeline.ArtifactType]string{
	pipeline.TypeMasterPlan:          "master-plan",
	pipeline.TypeArchitecture:        "architecture",
	pipeline.TypeRolePlan:            "role-plans",
	pipeline.TypeConsensus:           "consensus",
	pipeline.TypeArbitration:         "arbitration",
	pipeline.TypeAuditReport:         "audit",
	pipeline.TypeRCAReport:           "incidents",
	pipeline.TypeStuckReport:         "incidents",
	pipeline.TypeProductionReadiness: "production",
	pipeline.TypeReleaseNotes:        "release",
	pipeline.TypeDeployment:          "release",
	pipeline.TypeRollback:            "release",
	pipeline.TypeRepoSnapshot:        "snapshots",
	pipeline.TypeBuildCheck:          "checks",
	pipeline.TypeTestCheck:           "checks",
	pipeline.TypeLintCheck:           "checks",
	pipeline.TypeTypecheckCheck:      "checks",
	pipeline.TypePlaceholderScan:     "checks",
	pipeline.TypeQAValidation:        "checks",
	pipeline.TypeResolvedCommands:    "checks",
	pipeline.TypeReviewDecision:      "journal",
	pipeline.TypeJournalistTrace:     "journal",
	pipeline.TypeChangeRequest:       "journal",
	pipeline.TypeAdditionalContext:   "journal",
	pipeline.TypeConstitution:        "governance",
}

// Subdir returns the docs/ subdirectory for an artifact type.
func Subdir(t pipeline.ArtifactType) string {
	if d, ok := typeSubdirs[t]; ok {
		return d
	}
	return "journal"
}

// fileNamePattern validates on-disk artifact filenames. The format is
// bit-stable: {type}_{shortId}_v{version}_{YYYY-MM-DD}.{md|json}.
var fileNamePattern = regexp.MustCompile(`^[a-z_]+_[a-f0-9]{8}_v\d+_\d{4}-\d{2}-\d{2}\.(md|json)$`)

// FileName builds the canonical artifact filename.
func FileName(t pipeline.ArtifactType, id string, version int, ts time.Time, ct pipeline.ContentType) string {
	return fmt.Sprintf("%s_%s_v%d_%s.%s", t, ShortID(id), version, ts.Format("2006-01-02"), ct.Ext())
}

// ValidFileName reports whether name matches the canonical artifact
// filename format.
func ValidFileName(name string) bool {
	return fileNamePattern.MatchString(name)
}

// ShortID returns the first 8 hex characters of a UUID with hyphens removed.
func ShortID(id string) string {
	compact := strings.ReplaceAll(id, "-", "")
	if len(compact) < 8 {
		return compact
	}
	return compact[:8]
}

// relPath builds the repo-relative payload path for an entry.
func relPath(t pipeline.ArtifactType, name string) string {
	return filepath.Join(DocsDir, Subdir(t), name)
}
