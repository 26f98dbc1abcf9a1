package pipeline

// Options is the read-only configuration of a single workflow run. Every field
// has a usable zero value; phases read only the fields they need.
type Options struct {
	Test      bool `json:"test"`
	AIAgent   bool `json:"ai_agent"`
	Fast      bool `json:"fast"`
	Comp      bool `json:"comp"`
	SkipHooks bool `json:"skip_hooks"`
	Clean     bool `json:"clean"`

	// Publish and Bump take a semver level: "patch", "minor" or "major".
	// Publish implies a bump at the same level.
	Publish string `json:"publish,omitempty"`
	Bump    string `json:"bump,omitempty"`

	Commit        bool   `json:"commit"`
	CreatePR      bool   `json:"create_pr"`
	CommitMessage string `json:"commit_message,omitempty"`

	Cleanup CleanupPolicy `json:"cleanup"`
}

// CleanupPolicy controls what the cleaning phase leaves behind.
type CleanupPolicy struct {
	Backup      bool     `json:"backup"`       // write a .bak copy before rewriting a file
	KeepBackups bool     `json:"keep_backups"` // keep .bak copies after the run
	Exclude     []string `json:"exclude,omitempty"`
}

// BumpLevel returns the version level to bump, or "" when no bump is requested.
func (o Options) BumpLevel() string {
	if o.Publish != "" {
		return o.Publish
	}
	return o.Bump
}

// WantsCommit reports whether the commit phase has work to do.
func (o Options) WantsCommit() bool {
	return o.Commit || o.CreatePR
}

// Message returns the commit message, falling back to a generic one.
func (o Options) Message() string {
	if o.CommitMessage != "" {
		return o.CommitMessage
	}
	return "chore: automated quality fixes"
}
