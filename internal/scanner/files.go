package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/codeqa/codeqa/internal/config"
	"github.com/codeqa/codeqa/internal/logging"
	"github.com/codeqa/codeqa/internal/report"
)

// ErrRootNotFound is returned when the analysis root does not exist.
var ErrRootNotFound = errors.New("root path not found")

const rulePermissionDenied = "permission-denied"

// Classification is the output of one directory walk.
type Classification struct {
	Root              string
	Files             []report.FileRecord
	Directories       []string
	FileTypes         map[string]int
	Languages         map[string]int
	Findings          []report.Finding
	OrganizationScore int
}

type FileScanner struct {
	rootPath string
	config   *config.StructureConfig
	fs       billy.Filesystem
	logger   logging.Logger
}

func NewFileScanner(rootPath string, cfg *config.StructureConfig, logger logging.Logger) (*FileScanner, error) {
	absPath, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %w", ErrRootNotFound, absPath, err)
		}
		return nil, fmt.Errorf("failed to stat root %s: %w", absPath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", absPath)
	}

	return &FileScanner{
		rootPath: absPath,
		config:   cfg,
		fs:       osfs.New(absPath),
		logger:   logging.OrNoOp(logger),
	}, nil
}

// Root returns the absolute root path.
func (s *FileScanner) Root() string {
	return s.rootPath
}

// loadIgnores adds the .gitignore patterns of dir ("" for the root). An
// unreadable file only loses its own patterns.
func (s *FileScanner) loadIgnores(ignores *ignoreSet, dir string) {
	if ignores == nil {
		return
	}

	var err error
	if dir == "" {
		err = ignores.loadRoot()
	} else {
		err = ignores.loadDir(dir)
	}
	switch {
	case errors.Is(err, fs.ErrPermission):
		s.logger.Debug("unreadable .gitignore skipped", logging.F("dir", dir), logging.Err(err))
	case err != nil:
		s.logger.Warn("failed to read .gitignore, continuing without it", logging.F("dir", dir), logging.Err(err))
	}
}

// Classify walks the root and records every regular file that is not excluded.
// Unreadable directories are reported as findings and skipped.
func (s *FileScanner) Classify(ctx context.Context) (*Classification, error) {
	result := &Classification{
		Root:      s.rootPath,
		Files:     []report.FileRecord{},
		FileTypes: make(map[string]int),
		Languages: make(map[string]int),
	}

	var ignores *ignoreSet
	if s.config.RespectGitignore {
		ignores = newIgnoreSet(s.fs)
	}

	err := filepath.WalkDir(s.rootPath, func(p string, entry os.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		relPath, relErr := s.relative(p)
		if relErr != nil {
			return relErr
		}

		if err != nil {
			if p == s.rootPath {
				return err
			}
			if errors.Is(err, fs.ErrPermission) {
				s.recordPermissionDenied(result, relPath, err)
				if entry != nil && entry.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			return err
		}

		if p == s.rootPath {
			s.loadIgnores(ignores, "")
			return nil
		}

		if entry.IsDir() {
			if s.shouldSkipDir(ignores, relPath, entry.Name()) {
				return filepath.SkipDir
			}
			result.Directories = append(result.Directories, relPath)
			s.loadIgnores(ignores, relPath)
			return nil
		}

		if !entry.Type().IsRegular() || ignores.matches(relPath, false) {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			s.logger.Warn("failed to stat file, skipping", logging.F("file", relPath), logging.Err(err))
			return nil
		}

		s.addFile(result, relPath, info.Size())
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to scan files: %w", err)
	}

	result.OrganizationScore = OrganizationScore(result.Files, result.Directories, s.config.FlatFileThreshold)
	return result, nil
}

func (s *FileScanner) relative(p string) (string, error) {
	relPath, err := filepath.Rel(s.rootPath, p)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(relPath), nil
}

func (s *FileScanner) addFile(result *Classification, relPath string, size int64) {
	ext := strings.ToLower(path.Ext(relPath))
	result.Files = append(result.Files, report.FileRecord{
		Path:      relPath,
		Extension: ext,
		Size:      size,
	})

	key := ext
	if key == "" {
		key = "no_extension"
	}
	result.FileTypes[key]++

	if language := DetectLanguage(relPath); language != "" {
		result.Languages[language]++
	}
}

func (s *FileScanner) recordPermissionDenied(result *Classification, relPath string, err error) {
	s.logger.Warn("permission denied, skipping subtree", logging.F("path", relPath), logging.Err(err))
	result.Findings = append(result.Findings, report.Finding{
		RuleID:   rulePermissionDenied,
		Category: report.CategoryStructure,
		Severity: report.SeverityLow,
		File:     relPath,
		Message:  fmt.Sprintf("Could not read %s: permission denied; subtree skipped", relPath),
	})
}

func (s *FileScanner) shouldSkipDir(ignores *ignoreSet, relPath, name string) bool {
	for _, pattern := range s.config.ExcludeDirs {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
	}
	return ignores.matches(relPath, true)
}

// AbsPath resolves a record path against the root.
func (s *FileScanner) AbsPath(record report.FileRecord) string {
	return filepath.Join(s.rootPath, filepath.FromSlash(record.Path))
}

// SortedFileTypes returns extensions ordered by count (descending), then name.
func SortedFileTypes(fileTypes map[string]int) []string {
	keys := make([]string, 0, len(fileTypes))
	for key := range fileTypes {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if fileTypes[keys[i]] != fileTypes[keys[j]] {
			return fileTypes[keys[i]] > fileTypes[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
