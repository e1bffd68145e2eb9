package domain

// Platform constants
const (
	// PlatformGitLab represents the GitLab issue tracker
	PlatformGitLab = "gitlab"
	// PlatformGitHub represents the GitHub issue tracker
	PlatformGitHub = "github"
)
