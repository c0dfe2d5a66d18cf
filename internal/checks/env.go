package checks

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/randalmurphal/popeye/internal/pipeline"
)

// RunEnvCheck verifies .env completeness against .env.example. No example
// file means the project declares no required environment and the check
// passes. Empty values warn but pass; missing keys fail.
func (r *Runner) RunEnvCheck() pipeline.GateCheckResult {
	result := pipeline.GateCheckResult{
		CheckType: pipeline.CheckEnv,
		Status:    pipeline.CheckPass,
		Timestamp: time.Now().UTC(),
	}

	required, err := parseEnvKeys(filepath.Join(r.projectDir, ".env.example"))
	if err != nil {
		if os.IsNotExist(err) {
			result.StderrSummary = "no .env.example present; nothing to verify"
			return result
		}
		result.Status = pipeline.CheckFail
		result.ExitCode = 1
		result.StderrSummary = fmt.Sprintf("read .env.example: %v", err)
		return result
	}
	if len(required) == 0 {
		return result
	}

	actual, err := parseEnvValues(filepath.Join(r.projectDir, ".env"))
	if err != nil {
		result.Status = pipeline.CheckFail
		result.ExitCode = 1
		result.StderrSummary = ".env.example exists but .env is missing"
		return result
	}

	var missing, empty []string
	for _, key := range required {
		v, ok := actual[key]
		switch {
		case !ok:
			missing = append(missing, key)
		case strings.TrimSpace(v) == "":
			empty = append(empty, key)
		}
	}

	var notes []string
	if len(empty) > 0 {
		notes = append(notes, fmt.Sprintf("warning: empty values for %s", strings.Join(empty, ", ")))
	}
	if len(missing) > 0 {
		result.Status = pipeline.CheckFail
		result.ExitCode = 1
		notes = append(notes, fmt.Sprintf("Missing vars: %s", strings.Join(missing, ", ")))
	}
	result.StderrSummary = strings.Join(notes, "\n")

	r.logger.Info("env check completed",
		"status", result.Status, "required", len(required), "missing", len(missing), "empty", len(empty))
	return result
}

// parseEnvKeys returns the ordered non-comment keys of an env file.
func parseEnvKeys(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var keys []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if key, _, ok := splitEnvLine(scanner.Text()); ok {
			keys = append(keys, key)
		}
	}
	return keys, scanner.Err()
}

// parseEnvValues returns the key-value pairs of an env file.
func parseEnvValues(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if key, value, ok := splitEnvLine(scanner.Text()); ok {
			values[key] = value
		}
	}
	return values, scanner.Err()
}

// splitEnvLine parses KEY=VALUE, skipping comments and blank lines.
func splitEnvLine(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimPrefix(line, "export ")
	idx := strings.Index(line, "=")
	if idx <= 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:idx])
	value = strings.Trim(strings.TrimSpace(line[idx+1:]), `"'`)
	return key, value, true
}
