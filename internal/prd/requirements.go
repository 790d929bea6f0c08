package prd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ManifestCheck verifies that a project manifest's install artifact is
// present. Checks are consulted during pre-flight; a non-empty return is a
// requirement failure.
type ManifestCheck func(dir string) string

// ManifestChecks is the pluggable list of install-artifact checks. The
// default covers Node projects: a package.json that declares dependencies
// implies node_modules must exist.
var ManifestChecks = []ManifestCheck{nodeModulesCheck}

// CheckRequirements validates the pre-flight requirements of a PRD run.
// Failures are returned structurally, never thrown; an empty slice means
// the run may start.
func CheckRequirements(dir string, opts RunOptions) []string {
	var failures []string

	if info, err := os.Stat(filepath.Join(dir, ".git")); err != nil || !info.IsDir() {
		failures = append(failures, "not a git repository (missing .git directory)")
	}

	if opts.GitHubRepo == "" {
		path := opts.YAMLPath
		if path == "" {
			path = opts.prdPath()
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		if _, err := os.Stat(path); err != nil {
			failures = append(failures, fmt.Sprintf("task source not found: %s", path))
		}
	}

	for _, check := range ManifestChecks {
		if msg := check(dir); msg != "" {
			failures = append(failures, msg)
		}
	}

	return failures
}

// nodeModulesCheck flags a package.json with declared dependencies but no
// node_modules directory.
func nodeModulesCheck(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return ""
	}
	var manifest struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return ""
	}
	if len(manifest.Dependencies) == 0 && len(manifest.DevDependencies) == 0 {
		return ""
	}
	if _, err := os.Stat(filepath.Join(dir, "node_modules")); err != nil {
		return "package.json declares dependencies but node_modules is missing (run your package manager's install)"
	}
	return ""
}
