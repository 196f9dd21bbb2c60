package models

import "time"

// Ref types a Pipeline or RunConfig can be pinned to.
const (
	RefTypeBranch = "branch"
	RefTypeTag    = "tag"
	RefTypeCommit = "commit"
)

// ProviderGitHub is the only supported code-hosting provider.
const ProviderGitHub = "github"

// Pipeline records an imported organization/project pair. The pair is unique
// by registry lookup, not by a database constraint.
type Pipeline struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	Provider    string `gorm:"size:32;not null;default:github"`
	OrgName     string `gorm:"size:128;not null;index:idx_pipeline_repo"`
	ProjectName string `gorm:"size:128;not null;index:idx_pipeline_repo"`
	Ref         string `gorm:"size:255"`
	RefType     string `gorm:"size:16"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FullName returns "org/project".
func (p Pipeline) FullName() string {
	return p.OrgName + "/" + p.ProjectName
}
