package dashboard

import (
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/liteflow/internal/remote"
	"github.com/zulandar/liteflow/internal/storage"
)

func storageError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrUnknownBackend), errors.Is(err, storage.ErrNotFound):
		jsonError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrInvalidPath):
		jsonError(c, http.StatusBadRequest, err.Error())
	default:
		jsonError(c, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) handleStorage(c *gin.Context) {
	s.render(c, http.StatusOK, "storage.html", "Storage", gin.H{"Backends": s.deps.Storage.Summaries()})
}

func (s *Server) handleStorageBackends(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"backends": s.deps.Storage.Summaries()})
}

func (s *Server) handleStorageList(c *gin.Context) {
	b, err := s.deps.Storage.Get(c.Param("backend"))
	if err != nil {
		storageError(c, err)
		return
	}
	items, err := b.List(c.Request.Context(), strings.TrimLeft(c.Query("path"), "/"))
	if err != nil {
		s.log.Warn().Err(err).Str("backend", b.Name()).Msg("list storage")
		storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// handleStorageDownload streams local files as attachments and redirects to
// a presigned URL for object stores.
func (s *Server) handleStorageDownload(c *gin.Context) {
	name, hasName := c.GetQuery("storage")
	p, hasPath := c.GetQuery("path")
	if !hasName || !hasPath {
		jsonError(c, http.StatusBadRequest, "Missing storage or path parameter")
		return
	}
	p = strings.TrimLeft(p, "/")
	b, err := s.deps.Storage.Get(name)
	if err != nil {
		storageError(c, err)
		return
	}

	if local, ok := b.(*storage.Local); ok {
		file, err := local.Open(p)
		if err != nil {
			storageError(c, err)
			return
		}
		c.FileAttachment(file, path.Base(p))
		return
	}

	u, err := b.DownloadURL(c.Request.Context(), p)
	if err != nil {
		storageError(c, err)
		return
	}
	if u == storage.DownloadPath(name, p) {
		jsonError(c, http.StatusBadGateway, "could not create a download URL")
		return
	}
	c.Redirect(http.StatusFound, u)
}

func (s *Server) handleCacheClear(c *gin.Context) {
	category := c.Param("category")
	var (
		n     int
		err   error
		label string
	)
	switch category {
	case "github":
		label = "GitHub"
		n, err = s.deps.Cache.ClearPrefix(remote.CachePrefix)
	case "s3":
		label = "S3"
		n, err = s.deps.Cache.ClearPrefix(storage.CachePrefix)
	case "all":
		label = "All"
		n, err = s.deps.Cache.Clear()
	default:
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "unknown cache category " + category})
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("category", category).Msg("clear cache")
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}
	s.log.Info().Str("category", category).Int("keys", n).Msg("cache cleared")
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": label + " cache cleared successfully",
		"cleared": n,
	})
}
