package github

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// GitHub usernames/orgs: 1-39 alphanumeric or hyphen, not starting with hyphen
	validOwner = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{0,38}$`)
	// GitHub repo names: 1-100 alphanumeric, hyphen, underscore, or dot
	validRepo = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,100}$`)
)

// ValidateRepoRef validates owner and repo before they are placed in an
// API path.
func ValidateRepoRef(owner, repo string) error {
	switch {
	case owner == "":
		return errors.New("owner is required")
	case !validOwner.MatchString(owner):
		return errors.New("invalid owner format: must be 1-39 alphanumeric characters or hyphens, cannot start with hyphen")
	case repo == "":
		return errors.New("repo is required")
	case !validRepo.MatchString(repo), repo == ".", repo == "..":
		return errors.New("invalid repo format: must be 1-100 alphanumeric characters, hyphens, underscores, or dots")
	}
	return nil
}

// ParseRepoRef parses an "owner/repo" string and validates both parts.
func ParseRepoRef(ref string) (owner, repo string, err error) {
	owner, repo, found := strings.Cut(ref, "/")
	if !found {
		return "", "", errors.New("invalid repo format: use owner/repo")
	}
	if err := ValidateRepoRef(owner, repo); err != nil {
		return "", "", err
	}
	return owner, repo, nil
}
