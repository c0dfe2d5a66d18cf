package checks

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/randalmurphal/popeye/internal/pipeline"
)

// AllowlistFile exempts specific files from the placeholder scan, one
// repo-relative path per line. Lines starting with # are comments.
const AllowlistFile = ".popeye/placeholder_allowlist"

// scanRoots are the source directories the placeholder scan walks. Roots
// that do not exist are skipped.
var scanRoots = []string{"src", "app", "pages", "lib", "components", "server", "api"}

// sourceGlob matches scannable source files under a root, recursively.
const sourceGlob = "**/*.{ts,tsx,js,jsx,py,go,rb,java,vue,svelte,html,css}"

// placeholderPatterns flag unfinished or template-derived content.
var placeholderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bTODO\b`),
	regexp.MustCompile(`(?i)\bFIXME\b`),
	regexp.MustCompile(`(?i)\bXXX\b:`),
	regexp.MustCompile(`(?i)lorem\s+ipsum`),
	regexp.MustCompile(`(?i)\bchangeme\b`),
	regexp.MustCompile(`(?i)your[\s_-]?(api[\s_-]?key|app[\s_-]?name|company)`),
	regexp.MustCompile(`(?i)placeholder\s+(text|content|image)`),
	regexp.MustCompile(`(?i)insert\s+(text|content|description)\s+here`),
	regexp.MustCompile(`(?i)coming\s+soon`),
}

// PlaceholderHit records one flagged occurrence.
type PlaceholderHit struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Pattern string `json:"pattern"`
	Text    string `json:"text"`
}

// RunPlaceholderScan walks the project's source directories and flags
// TODO/FIXME markers, lorem-ipsum text, and known template fingerprints.
// Allowlisted files are exempt. Any remaining hit fails the check.
func (r *Runner) RunPlaceholderScan() ([]PlaceholderHit, pipeline.GateCheckResult) {
	result := pipeline.GateCheckResult{
		CheckType: pipeline.CheckPlaceholderScan,
		Status:    pipeline.CheckPass,
		Timestamp: time.Now().UTC(),
	}
	start := time.Now()
	allow := r.loadAllowlist()

	var hits []PlaceholderHit
	for _, root := range scanRoots {
		rootAbs := filepath.Join(r.projectDir, root)
		if info, err := os.Stat(rootAbs); err != nil || !info.IsDir() {
			continue
		}
		matches, err := doublestar.Glob(os.DirFS(rootAbs), sourceGlob)
		if err != nil {
			continue
		}
		sort.Strings(matches)
		for _, m := range matches {
			rel := filepath.ToSlash(filepath.Join(root, m))
			if allow[rel] {
				continue
			}
			hits = append(hits, scanFile(filepath.Join(rootAbs, m), rel)...)
		}
	}

	result.DurationMS = time.Since(start).Milliseconds()
	if len(hits) > 0 {
		result.Status = pipeline.CheckFail
		result.ExitCode = 1
		result.StderrSummary = summarizeHits(hits)
	}
	r.logger.Info("placeholder scan completed", "status", result.Status, "hits", len(hits))
	return hits, result
}

// loadAllowlist reads the allowlist file into a set of repo-relative paths.
func (r *Runner) loadAllowlist() map[string]bool {
	allow := make(map[string]bool)
	f, err := os.Open(filepath.Join(r.projectDir, AllowlistFile))
	if err != nil {
		return allow
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		allow[filepath.ToSlash(line)] = true
	}
	return allow
}

// scanFile returns the placeholder hits in a single file.
func scanFile(abs, rel string) []PlaceholderHit {
	f, err := os.Open(abs)
	if err != nil {
		return nil
	}
	defer f.Close()

	var hits []PlaceholderHit
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		for _, p := range placeholderPatterns {
			if p.MatchString(line) {
				hits = append(hits, PlaceholderHit{
					Path:    rel,
					Line:    lineNo,
					Pattern: p.String(),
					Text:    strings.TrimSpace(line),
				})
				break
			}
		}
	}
	return hits
}

// summarizeHits formats hits for the stderr summary, bounded.
func summarizeHits(hits []PlaceholderHit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d placeholder occurrence(s) found\n", len(hits))
	for _, h := range hits {
		fmt.Fprintf(&b, "%s:%d: %s\n", h.Path, h.Line, h.Text)
		if b.Len() > stderrSummaryLimit {
			break
		}
	}
	return summarizeStderr(b.String(), false)
}
