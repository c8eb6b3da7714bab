package scanner

import (
	"bufio"
	"bytes"
	"errors"
	"io/fs"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

const (
	gitignoreFile   = ".gitignore"
	infoExcludeFile = ".git/info/exclude"
)

// ignoreSet accumulates .gitignore patterns while the tree is walked. A
// directory's patterns are added when the walk enters it, so they only ever
// apply to its own subtree. Later patterns take precedence.
type ignoreSet struct {
	fs       billy.Filesystem
	patterns []gitignore.Pattern
}

func newIgnoreSet(filesystem billy.Filesystem) *ignoreSet {
	return &ignoreSet{fs: filesystem}
}

// loadRoot reads .git/info/exclude and the root .gitignore.
func (i *ignoreSet) loadRoot() error {
	return errors.Join(
		i.readFile(infoExcludeFile, nil),
		i.readFile(gitignoreFile, nil),
	)
}

// loadDir reads the .gitignore of dir, a slash-separated path relative to the
// root. A missing file is not an error.
func (i *ignoreSet) loadDir(dir string) error {
	return i.readFile(path.Join(dir, gitignoreFile), strings.Split(dir, "/"))
}

func (i *ignoreSet) readFile(name string, domain []string) error {
	data, err := util.ReadFile(i.fs, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	lines := bufio.NewScanner(bytes.NewReader(data))
	for lines.Scan() {
		line := strings.TrimSuffix(lines.Text(), "\r")
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		i.patterns = append(i.patterns, gitignore.ParsePattern(line, domain))
	}
	return lines.Err()
}

// matches reports whether relPath is ignored. A nil set ignores nothing.
func (i *ignoreSet) matches(relPath string, isDir bool) bool {
	if i == nil {
		return false
	}
	parts := strings.Split(relPath, "/")
	for n := len(i.patterns) - 1; n >= 0; n-- {
		switch i.patterns[n].Match(parts, isDir) {
		case gitignore.Exclude:
			return true
		case gitignore.Include:
			return false
		}
	}
	return false
}
