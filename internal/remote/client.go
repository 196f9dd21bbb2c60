// Package remote fetches pipeline repository metadata from GitHub with
// cache-aside lookups. Every cache key starts with the "github" prefix.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v68/github"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/zulandar/liteflow/internal/cache"
	"github.com/zulandar/liteflow/internal/log"
	"github.com/zulandar/liteflow/internal/markdown"
	"github.com/zulandar/liteflow/internal/metrics"
)

// CachePrefix is the cache invalidation unit for all GitHub lookups.
const CachePrefix = "github"

// DefaultRawBaseURL serves raw file content for github.com repositories.
const DefaultRawBaseURL = "https://raw.githubusercontent.com"

var (
	// ErrFileNotFound is returned when a path does not exist at a ref.
	ErrFileNotFound = errors.New("remote: file not found")
	// ErrRepoNotFound is returned when the repository does not exist or is not visible.
	ErrRepoNotFound = errors.New("remote: repository not found")
)

// ReadmeCandidates are tried in order when looking for a README.
var ReadmeCandidates = []string{"README.md", "Readme.md", "readme.md"}

// ClientOptions configures a Client.
type ClientOptions struct {
	// Token is an optional bearer token; without one unauthenticated rate limits apply.
	Token string
	// BaseURL points at a GitHub Enterprise API, e.g. https://ghe.example.com/api/v3/.
	BaseURL     string
	RawBaseURL  string
	CommitLimit int
	Cache       *cache.Cache
	HTTPClient  *http.Client
}

// Client talks to the GitHub API.
type Client struct {
	gh          *github.Client
	rawBase     string
	commitLimit int
	cache       *cache.Cache
	log         zerolog.Logger
}

// NewClient builds a Client from opts.
func NewClient(opts ClientOptions) (*Client, error) {
	httpClient := opts.HTTPClient
	if opts.Token != "" {
		ctx := context.Background()
		if httpClient != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		}
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}))
	}
	gh := github.NewClient(httpClient)
	if opts.BaseURL != "" {
		var err error
		gh, err = gh.WithEnterpriseURLs(opts.BaseURL, opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("remote: base url %q: %w", opts.BaseURL, err)
		}
	}
	rawBase := opts.RawBaseURL
	if rawBase == "" {
		rawBase = DefaultRawBaseURL
	}
	limit := opts.CommitLimit
	if limit <= 0 {
		limit = 25
	}
	return &Client{
		gh:          gh,
		rawBase:     strings.TrimRight(rawBase, "/"),
		commitLimit: limit,
		cache:       opts.Cache,
		log:         log.WithComponent("remote"),
	}, nil
}

// SetBaseURL points the API client at u; used against test servers.
func (c *Client) SetBaseURL(u string) error {
	parsed, err := url.Parse(strings.TrimRight(u, "/") + "/")
	if err != nil {
		return fmt.Errorf("remote: base url: %w", err)
	}
	c.gh.BaseURL = parsed
	return nil
}

// Repo returns a handle on org/project.
func (c *Client) Repo(org, project string) *Repo {
	return &Repo{client: c, Org: org, Project: project}
}

// Repo is a single GitHub repository.
type Repo struct {
	client  *Client
	Org     string
	Project string
}

// Info is the subset of repository metadata the console shows.
type Info struct {
	FullName      string `json:"full_name"`
	Description   string `json:"description"`
	DefaultBranch string `json:"default_branch"`
	HTMLURL       string `json:"html_url"`
	Stars         int    `json:"stars"`
}

// Readme is a rendered README file.
type Readme struct {
	Name     string `json:"name"`
	Markdown string `json:"markdown"`
	HTML     string `json:"html"`
}

func (r *Repo) key(op string, extra ...string) string {
	return cache.Key(append([]string{CachePrefix, op, r.Org, r.Project}, extra...)...)
}

func record(op string, err error) {
	metrics.RemoteRequestsTotal.WithLabelValues(op, metrics.Outcome(err)).Inc()
}

// Info fetches repository metadata.
func (r *Repo) Info(ctx context.Context) (Info, error) {
	return cache.Fetch(r.client.cache, r.key("repo"), func() (Info, error) {
		repo, resp, err := r.client.gh.Repositories.Get(ctx, r.Org, r.Project)
		record("repo", err)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusNotFound {
				return Info{}, fmt.Errorf("%w: %s/%s", ErrRepoNotFound, r.Org, r.Project)
			}
			return Info{}, fmt.Errorf("remote: get repo %s/%s: %w", r.Org, r.Project, err)
		}
		return Info{
			FullName:      repo.GetFullName(),
			Description:   repo.GetDescription(),
			DefaultBranch: repo.GetDefaultBranch(),
			HTMLURL:       repo.GetHTMLURL(),
			Stars:         repo.GetStargazersCount(),
		}, nil
	})
}

// DefaultBranch returns the repository's primary branch name.
func (r *Repo) DefaultBranch(ctx context.Context) (string, error) {
	return cache.Fetch(r.client.cache, r.key("default_branch"), func() (string, error) {
		info, err := r.Info(ctx)
		if err != nil {
			return "", err
		}
		return info.DefaultBranch, nil
	})
}

// Refs lists every branch and tag plus the latest commits on the default
// branch. Commits holds every sha seen, keyed by its short form.
func (r *Repo) Refs(ctx context.Context) (*Refs, error) {
	return cache.Fetch(r.client.cache, r.key("refs"), func() (*Refs, error) {
		refs := newRefs()

		branchOpts := &github.BranchListOptions{ListOptions: github.ListOptions{PerPage: 100}}
		for {
			branches, resp, err := r.client.gh.Repositories.ListBranches(ctx, r.Org, r.Project, branchOpts)
			record("list_branches", err)
			if err != nil {
				return nil, r.wrap("list branches", resp, err)
			}
			for _, b := range branches {
				sha := b.GetCommit().GetSHA()
				refs.Branches[b.GetName()] = sha
				refs.addCommit(sha)
			}
			if resp.NextPage == 0 {
				break
			}
			branchOpts.Page = resp.NextPage
		}

		tagOpts := &github.ListOptions{PerPage: 100}
		for {
			tags, resp, err := r.client.gh.Repositories.ListTags(ctx, r.Org, r.Project, tagOpts)
			record("list_tags", err)
			if err != nil {
				return nil, r.wrap("list tags", resp, err)
			}
			for _, t := range tags {
				sha := t.GetCommit().GetSHA()
				refs.Tags[t.GetName()] = sha
				refs.addCommit(sha)
			}
			if resp.NextPage == 0 {
				break
			}
			tagOpts.Page = resp.NextPage
		}

		commits, resp, err := r.client.gh.Repositories.ListCommits(ctx, r.Org, r.Project, &github.CommitsListOptions{
			ListOptions: github.ListOptions{PerPage: r.client.commitLimit},
		})
		record("list_commits", err)
		if err != nil {
			return nil, r.wrap("list commits", resp, err)
		}
		for _, c := range commits {
			refs.addCommit(c.GetSHA())
		}
		return refs, nil
	})
}

// FileContent returns the text of path at sha. sha should be a resolved
// commit id so cached content never goes stale.
func (r *Repo) FileContent(ctx context.Context, path, sha string) (string, error) {
	return cache.Fetch(r.client.cache, r.key("file", path, sha), func() (string, error) {
		file, _, resp, err := r.client.gh.Repositories.GetContents(ctx, r.Org, r.Project, path,
			&github.RepositoryContentGetOptions{Ref: sha})
		record("get_contents", err)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusNotFound {
				return "", fmt.Errorf("%w: %s at %s", ErrFileNotFound, path, ShortSHA(sha))
			}
			return "", fmt.Errorf("remote: get %s/%s %s: %w", r.Org, r.Project, path, err)
		}
		if file == nil {
			return "", fmt.Errorf("%w: %s is a directory", ErrFileNotFound, path)
		}
		content, err := file.GetContent()
		if err != nil {
			return "", fmt.Errorf("remote: decode %s: %w", path, err)
		}
		return content, nil
	})
}

// RawFileURL returns the raw-content URL of path at ref.
func (r *Repo) RawFileURL(path, ref string) string {
	return r.RawBaseURL(ref) + "/" + strings.TrimLeft(path, "/")
}

// RawBaseURL returns the raw-content root of the repository at ref.
func (r *Repo) RawBaseURL(ref string) string {
	return fmt.Sprintf("%s/%s/%s/%s", r.client.rawBase, r.Org, r.Project, ref)
}

// Readme returns the first README candidate present at sha, rendered with
// relative links pointing at raw content. A repository without a README
// yields an empty Readme and no error.
func (r *Repo) Readme(ctx context.Context, sha string) (Readme, error) {
	for _, name := range ReadmeCandidates {
		content, err := r.FileContent(ctx, name, sha)
		if errors.Is(err, ErrFileNotFound) {
			continue
		}
		if err != nil {
			return Readme{}, err
		}
		rendered, err := markdown.Render(content, r.RawBaseURL(sha))
		if err != nil {
			return Readme{}, err
		}
		return Readme{Name: name, Markdown: content, HTML: rendered}, nil
	}
	r.client.log.Debug().Str("repo", r.Org+"/"+r.Project).Msg("no readme found")
	return Readme{}, nil
}

func (r *Repo) wrap(op string, resp *github.Response, err error) error {
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s/%s", ErrRepoNotFound, r.Org, r.Project)
	}
	return fmt.Errorf("remote: %s %s/%s: %w", op, r.Org, r.Project, err)
}
