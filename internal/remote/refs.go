package remote

import (
	"errors"
	"fmt"

	"github.com/zulandar/liteflow/internal/models"
)

var (
	// ErrInvalidRefType is returned for a ref type other than branch, tag or commit.
	ErrInvalidRefType = errors.New("remote: invalid ref type")
	// ErrRefNotFound is returned when a branch or tag is not in the refs map.
	ErrRefNotFound = errors.New("remote: ref not found")
)

// ShortSHALen is the length of the abbreviated commit ids used as Commits keys.
const ShortSHALen = 7

// Refs is a snapshot of a repository's branches, tags and recent commits.
type Refs struct {
	Branches map[string]string `json:"branches"`
	Tags     map[string]string `json:"tags"`
	Commits  map[string]string `json:"commits"`
}

// Resolve maps a ref of the given type to a commit sha. Commit refs are
// returned unchanged.
func (r *Refs) Resolve(ref, refType string) (string, error) {
	var table map[string]string
	switch refType {
	case models.RefTypeCommit:
		return ref, nil
	case models.RefTypeBranch:
		table = r.Branches
	case models.RefTypeTag:
		table = r.Tags
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRefType, refType)
	}
	sha, ok := table[ref]
	if !ok {
		return "", fmt.Errorf("%w: %s %q", ErrRefNotFound, refType, ref)
	}
	return sha, nil
}

// ExpandCommit returns the full sha for a short commit id, or ref itself when
// it is not a known abbreviation.
func (r *Refs) ExpandCommit(ref string) string {
	if full, ok := r.Commits[ref]; ok {
		return full
	}
	if len(ref) > ShortSHALen {
		if full, ok := r.Commits[ref[:ShortSHALen]]; ok && full == ref {
			return full
		}
	}
	return ref
}

// ShortSHA abbreviates a commit id.
func ShortSHA(sha string) string {
	if len(sha) <= ShortSHALen {
		return sha
	}
	return sha[:ShortSHALen]
}

// addCommit records sha in the commit map under its short form.
func (r *Refs) addCommit(sha string) {
	if sha == "" {
		return
	}
	r.Commits[ShortSHA(sha)] = sha
}

func newRefs() *Refs {
	return &Refs{
		Branches: make(map[string]string),
		Tags:     make(map[string]string),
		Commits:  make(map[string]string),
	}
}
