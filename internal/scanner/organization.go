package scanner

import (
	"strings"

	"github.com/codeqa/codeqa/internal/report"
)

const (
	organizationBase        = 6
	crowdedRootFileCount    = 50
	flatLayoutPenalty       = 3
	crowdedRootPenalty      = 1
	organizationDirBonus    = 1
	organizationReadmeBonus = 1
)

var (
	sourceDirNames = map[string]bool{"src": true, "lib": true, "app": true, "pkg": true, "internal": true, "cmd": true}
	testDirNames   = map[string]bool{"tests": true, "test": true, "spec": true, "__tests__": true}
	docDirNames    = map[string]bool{"docs": true, "doc": true}
)

// OrganizationScore rates the directory layout. An empty file set scores the maximum.
func OrganizationScore(files []report.FileRecord, directories []string, flatThreshold int) int {
	if len(files) == 0 {
		return report.MaxScore
	}

	var hasSource, hasTests, hasDocs bool
	for _, dir := range directories {
		name := strings.ToLower(dir[strings.LastIndex(dir, "/")+1:])
		hasSource = hasSource || sourceDirNames[name]
		hasTests = hasTests || testDirNames[name]
		hasDocs = hasDocs || docDirNames[name]
	}

	rootFiles := 0
	hasReadme := false
	for _, file := range files {
		if strings.Contains(file.Path, "/") {
			continue
		}
		rootFiles++
		if IsReadme(file.Path) {
			hasReadme = true
		}
	}

	score := organizationBase
	for _, present := range []bool{hasSource, hasTests, hasDocs} {
		if present {
			score += organizationDirBonus
		}
	}
	if hasReadme {
		score += organizationReadmeBonus
	}

	switch {
	case len(directories) == 0 && rootFiles > flatThreshold:
		score -= flatLayoutPenalty
	case rootFiles > crowdedRootFileCount:
		score -= crowdedRootPenalty
	}

	return report.ClampScore(score)
}

// IsReadme reports whether name looks like a README file.
func IsReadme(name string) bool {
	base := strings.ToLower(name[strings.LastIndex(name, "/")+1:])
	return base == "readme" || strings.HasPrefix(base, "readme.")
}
