package dashboard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/liteflow/internal/remote"
)

const layoutFile = "templates/layout.html"

// pages maps a page template name to its parsed set (layout + page).
type pages struct {
	sets map[string]*template.Template
}

var funcs = template.FuncMap{
	"timeAgo":  TimeAgo,
	"shortSHA": remote.ShortSHA,
	"json":     toJSON,
	"keys":     sortedKeys,
	"deref": func(p *uint) uint {
		if p == nil {
			return 0
		}
		return *p
	},
	"safeHTML": func(s string) template.HTML { return template.HTML(s) },
}

func parsePages() (*pages, error) {
	names, err := fs.Glob(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("glob templates: %w", err)
	}
	p := &pages{sets: make(map[string]*template.Template)}
	for _, name := range names {
		if name == layoutFile {
			continue
		}
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templatesFS, layoutFile, name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		p.sets[path.Base(name)] = t
	}
	return p, nil
}

// view is the data every page receives.
type view struct {
	Title         string
	Active        string
	Authenticated bool
	Flashes       []flash
	Version       string
	Data          any
}

func (s *Server) render(c *gin.Context, status int, page, title string, data any) {
	t, ok := s.pages.sets[page]
	if !ok {
		s.log.Error().Str("page", page).Msg("unknown template")
		c.String(http.StatusInternalServerError, "internal error")
		return
	}
	v := view{
		Title:         title,
		Active:        page,
		Authenticated: page != "login.html",
		Flashes:       popFlashes(c, s.deps.CookieSecure),
		Version:       s.deps.Version,
		Data:          data,
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", v); err != nil {
		s.log.Error().Err(err).Str("page", page).Msg("render")
		c.String(http.StatusInternalServerError, "internal error")
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

// TimeAgo formats t relative to now, e.g. "3 minutes ago".
func TimeAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d.Minutes()), "minute") + " ago"
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour") + " ago"
	case d < 30*24*time.Hour:
		return plural(int(d.Hours()/24), "day") + " ago"
	default:
		return t.Format("2006-01-02")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func toJSON(v any) (template.JS, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return template.JS(b), nil
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
