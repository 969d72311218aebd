package vcs

import (
	"errors"

	git "github.com/go-git/go-git/v5"
)

// ErrNoRevision is returned when dir is not inside a git checkout with a HEAD.
var ErrNoRevision = errors.New("no git revision")

// Revision returns the HEAD commit hash of the repository containing dir.
func Revision(dir string) (string, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", errors.Join(ErrNoRevision, err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", errors.Join(ErrNoRevision, err)
	}
	return head.Hash().String(), nil
}
