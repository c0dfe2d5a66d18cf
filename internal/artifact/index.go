package artifact

import (
	"fmt"
	"sort"
	"strings"

	"github.com/randalmurphal/popeye/internal/pipeline"
	"github.com/randalmurphal/popeye/internal/util"
)

// UpdateIndex rewrites docs/INDEX.md from the given artifact list, grouped by
// type with the newest versions first within each group.
func (m *Manager) UpdateIndex(artifacts []pipeline.ArtifactEntry) error {
	byType := make(map[pipeline.ArtifactType][]pipeline.ArtifactEntry)
	for _, a := range artifacts {
		byType[a.Type] = append(byType[a.Type], a)
	}

	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, string(t))
	}
	sort.Strings(types)

	var b strings.Builder
	b.WriteString("# Artifact Index\n\n")
	b.WriteString("Generated by popeye. Do not edit; this file is rewritten after each phase.\n\n")

	for _, ts := range types {
		t := pipeline.ArtifactType(ts)
		entries := byType[t]
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		})

		fmt.Fprintf(&b, "## %s\n\n", ts)
		b.WriteString("| Version | Phase | Path | SHA-256 | Created |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, e := range entries {
			fmt.Fprintf(&b, "| v%d | %s | `%s` | `%s` | %s |\n",
				e.Version, e.Phase, e.Path, ShortID(e.SHA256), e.Timestamp.Format("2006-01-02 15:04"))
		}
		b.WriteString("\n")
	}

	return util.AtomicWriteFile(m.docsPath(IndexFile), []byte(b.String()), 0644)
}
