// Package remotetest provides an in-process fake of the GitHub REST endpoints
// used by package remote.
package remotetest

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/zulandar/liteflow/internal/cache"
	"github.com/zulandar/liteflow/internal/remote"
)

// Repo describes a fake repository.
type Repo struct {
	Org           string
	Project       string
	Description   string
	DefaultBranch string
	Branches      map[string]string
	Tags          map[string]string
	// Commits are the recent commit shas on the default branch, newest first.
	Commits []string
	// Files maps a sha to path → content. The "*" sha matches any ref.
	Files map[string]map[string]string
}

// Server is a fake GitHub API backed by httptest.
type Server struct {
	*httptest.Server

	mu    sync.Mutex
	repos map[string]*Repo
	hits  map[string]int
}

// NewServer starts a fake API serving repos and closes it on test cleanup.
func NewServer(t testing.TB, repos ...Repo) *Server {
	t.Helper()
	s := &Server{repos: make(map[string]*Repo), hits: make(map[string]int)}
	for i := range repos {
		s.AddRepo(repos[i])
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// AddRepo registers or replaces a repository.
func (s *Server) AddRepo(r Repo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.DefaultBranch == "" {
		r.DefaultBranch = "main"
	}
	s.repos[r.Org+"/"+r.Project] = &r
}

// Client returns a remote.Client pointed at the fake server.
func (s *Server) Client(t testing.TB, c *cache.Cache) *remote.Client {
	t.Helper()
	client, err := remote.NewClient(remote.ClientOptions{
		Cache:      c,
		RawBaseURL: s.URL + "/raw",
	})
	if err != nil {
		t.Fatalf("remote client: %v", err)
	}
	if err := client.SetBaseURL(s.URL); err != nil {
		t.Fatalf("remote base url: %v", err)
	}
	return client
}

// Hits returns how many requests reached endpoint ("repo", "branches",
// "tags", "commits" or "contents").
func (s *Server) Hits(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[endpoint]
}

func (s *Server) handle(w http.ResponseWriter, req *http.Request) {
	// Enterprise clients prefix every call with /api/v3.
	path := strings.TrimPrefix(req.URL.Path, "/api/v3")
	parts := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 5)
	if len(parts) < 3 || parts[0] != "repos" {
		notFound(w)
		return
	}
	s.mu.Lock()
	repo, ok := s.repos[parts[1]+"/"+parts[2]]
	endpoint := "repo"
	if len(parts) > 3 {
		endpoint = parts[3]
	}
	s.hits[endpoint]++
	s.mu.Unlock()
	if !ok {
		notFound(w)
		return
	}

	switch endpoint {
	case "repo":
		writeJSON(w, map[string]any{
			"name":             repo.Project,
			"full_name":        repo.Org + "/" + repo.Project,
			"description":      repo.Description,
			"default_branch":   repo.DefaultBranch,
			"html_url":         "https://github.com/" + repo.Org + "/" + repo.Project,
			"stargazers_count": 42,
		})
	case "branches":
		writeJSON(w, namedRefs(repo.Branches))
	case "tags":
		writeJSON(w, namedRefs(repo.Tags))
	case "commits":
		out := make([]map[string]any, 0, len(repo.Commits))
		for _, sha := range repo.Commits {
			out = append(out, map[string]any{"sha": sha})
		}
		writeJSON(w, out)
	case "contents":
		if len(parts) < 5 {
			notFound(w)
			return
		}
		file := parts[4]
		content, ok := repo.file(req.URL.Query().Get("ref"), file)
		if !ok {
			notFound(w)
			return
		}
		writeJSON(w, map[string]any{
			"type":     "file",
			"name":     file[strings.LastIndex(file, "/")+1:],
			"path":     file,
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte(content)),
		})
	default:
		notFound(w)
	}
}

func (r *Repo) file(ref, path string) (string, bool) {
	if files, ok := r.Files[ref]; ok {
		if c, ok := files[path]; ok {
			return c, true
		}
	}
	if files, ok := r.Files["*"]; ok {
		if c, ok := files[path]; ok {
			return c, true
		}
	}
	return "", false
}

func namedRefs(m map[string]string) []map[string]any {
	out := make([]map[string]any, 0, len(m))
	for name, sha := range m {
		out = append(out, map[string]any{"name": name, "commit": map[string]any{"sha": sha}})
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"message":"Not Found"}`))
}

// Demo returns a fake of nf-core/demo with a manifest, schema and README.
func Demo() Repo {
	const head = "1a2b3c4d5e6f7081928374655647382910abcdef"
	const tag = "fedcba0987654321fedcba0987654321fedcba09"
	return Repo{
		Org:           "nf-core",
		Project:       "demo",
		Description:   "An nf-core demo pipeline",
		DefaultBranch: "master",
		Branches:      map[string]string{"master": head, "dev": "00112233445566778899aabbccddeeff00112233"},
		Tags:          map[string]string{"1.0.0": tag},
		Commits:       []string{head, "99887766554433221100ffeeddccbbaa99887766"},
		Files: map[string]map[string]string{
			"*": {
				"nextflow.config": `params {
    input  = null
    outdir = null
}

manifest {
    name            = 'nf-core/demo'
    description     = """An nf-core demo pipeline"""
    nextflowVersion = '!>=24.04.2'
    version         = '1.0.0'
}
`,
				"nextflow_schema.json": `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "title": "nf-core/demo pipeline parameters",
  "type": "object",
  "$defs": {
    "input_output_options": {
      "title": "Input/output options",
      "type": "object",
      "required": ["input", "outdir"],
      "properties": {
        "input": {"type": "string", "format": "file-path", "description": "Path to samplesheet"},
        "outdir": {"type": "string", "format": "directory-path", "description": "Output directory"}
      }
    }
  },
  "allOf": [{"$ref": "#/$defs/input_output_options"}]
}
`,
				"README.md": "# nf-core/demo\n\n![logo](docs/images/logo.png)\n\nRead [the usage docs](docs/usage.md).\n",
			},
		},
	}
}
