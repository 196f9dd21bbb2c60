package pipeline

import (
	"context"

	"github.com/zulandar/liteflow/internal/remote"
)

// Repository is the remote metadata the registry needs for one pipeline.
type Repository interface {
	Info(ctx context.Context) (remote.Info, error)
	Refs(ctx context.Context) (*remote.Refs, error)
	DefaultBranch(ctx context.Context) (string, error)
	FileContent(ctx context.Context, path, sha string) (string, error)
	Readme(ctx context.Context, sha string) (remote.Readme, error)
}

// Source opens repositories by organization and project.
type Source interface {
	Repo(org, project string) Repository
}

// RemoteSource adapts a remote.Client to Source.
type RemoteSource struct {
	Client *remote.Client
}

// Repo implements Source.
func (s RemoteSource) Repo(org, project string) Repository {
	return s.Client.Repo(org, project)
}
