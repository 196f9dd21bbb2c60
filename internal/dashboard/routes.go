package dashboard

import (
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"
)

// registerRoutes sets up all console routes on the Gin router.
func (s *Server) registerRoutes(router *gin.Engine) {
	staticFS, _ := fs.Sub(assetsFS, "assets")
	router.StaticFS("/static", http.FS(staticFS))
	router.GET("/favicon.ico", s.handleFavicon)

	ajax := requireAJAX(s.log)

	// Session.
	router.GET("/login", s.handleLoginPage)
	router.POST("/login", s.handleLogin)
	router.GET("/logout", s.handleLogout)
	router.GET("/", func(c *gin.Context) { c.Redirect(http.StatusFound, "/home") })
	router.GET("/home", s.handleHome)

	// Pipelines.
	router.GET("/pipelines", s.handlePipelines)
	router.GET("/import_pipeline", s.handleImportPage)
	router.POST("/import_pipeline", s.handleImportForm)
	router.GET("/pipeline/:org/:project/:ref_type/:ref", s.handlePipeline)
	router.POST("/api/pipelines/import", ajax, s.handleImportAPI)

	// Configs.
	router.GET("/configs", s.handleConfigs)
	router.POST("/configs", ajax, s.handleCreateConfig)
	router.POST("/configs/set_default/:filename", ajax, s.handleSetDefault)
	router.GET("/configs/edit/:filename", s.handleEditConfigPage)
	router.POST("/configs/edit/:filename", ajax, s.handleEditConfig)
	router.POST("/configs/delete/:filename", ajax, s.handleDeleteConfig)

	// Run configs.
	router.GET("/run_configs", s.handleRunConfigs)
	router.GET("/run_config/:org/:pipeline/:run", s.handleRunConfig)
	router.POST("/run_config/:org/:pipeline/:run/delete", ajax, s.handleDeleteRunConfig)
	router.GET("/api/run_configs", s.handleRunConfigsAPI)
	router.POST("/api/create_run_config", ajax, s.handleCreateRunConfig)

	// Storage.
	router.GET("/storage", s.handleStorage)
	router.GET("/api/storage/backends", s.handleStorageBackends)
	router.GET("/api/storage/:backend/list", s.handleStorageList)
	router.GET("/api/storage/download", s.handleStorageDownload)

	// Cache.
	router.POST("/api/cache/clear/:category", ajax, s.handleCacheClear)
}

func (s *Server) handleFavicon(c *gin.Context) {
	data, err := assetsFS.ReadFile("assets/favicon.svg")
	if err != nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.Data(http.StatusOK, "image/svg+xml", data)
}

// jsonError writes {"error": msg} with status.
func jsonError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}
