package git

import (
	"fmt"
	"path/filepath"

	gogit "github.com/go-git/go-git/v5"
)

const failedToGetHeadError = "failed to get HEAD:"

// Repository is the git work tree that contains an analysed path.
type Repository struct {
	repo *gogit.Repository
	path string
}

// OpenRepository opens the repository containing path, searching parent
// directories for the .git entry.
func OpenRepository(path string) (*Repository, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	repo, err := gogit.PlainOpenWithOptions(absPath, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open git repository at %s: %w", absPath, err)
	}

	return &Repository{
		repo: repo,
		path: absPath,
	}, nil
}

func IsGitRepository(path string) bool {
	_, err := OpenRepository(path)
	return err == nil
}

func (r *Repository) GetPath() string {
	return r.path
}

func (r *Repository) GetCurrentBranch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf(failedToGetHeadError+" %w", err)
	}

	if head.Name().IsBranch() {
		return head.Name().Short(), nil
	}

	return "HEAD", nil
}

func (r *Repository) GetCurrentCommit() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf(failedToGetHeadError+" %w", err)
	}

	return head.Hash().String(), nil
}

// Describe returns the branch and commit of the work tree containing path.
// Both are empty when path is not inside a repository or HEAD is unborn.
func Describe(path string) (branch, commit string) {
	repo, err := OpenRepository(path)
	if err != nil {
		return "", ""
	}

	branch, err = repo.GetCurrentBranch()
	if err != nil {
		return "", ""
	}
	commit, err = repo.GetCurrentCommit()
	if err != nil {
		return "", ""
	}
	return branch, commit
}
