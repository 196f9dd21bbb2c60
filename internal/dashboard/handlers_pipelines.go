package dashboard

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/liteflow/internal/models"
	"github.com/zulandar/liteflow/internal/pipeline"
	"github.com/zulandar/liteflow/internal/remote"
)

func (s *Server) handlePipelines(c *gin.Context) {
	list, err := s.deps.Pipelines.List(c.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("list pipelines")
		addFlash(c, s.deps.CookieSecure, "error", "Error loading pipelines: "+err.Error())
	}
	s.render(c, http.StatusOK, "pipelines.html", "Pipelines", gin.H{"Pipelines": list})
}

func (s *Server) handleImportPage(c *gin.Context) {
	s.render(c, http.StatusOK, "import_pipeline.html", "Import pipeline", gin.H{})
}

func (s *Server) handleImportForm(c *gin.Context) {
	secure := s.deps.CookieSecure
	org, project, err := pipeline.ParseRepository(c.PostForm("repository"))
	if err != nil {
		addFlash(c, secure, "error", `Invalid repository format. Use "organization/pipeline_name".`)
		c.Redirect(http.StatusFound, "/import_pipeline")
		return
	}
	_, err = s.deps.Pipelines.Import(c.Request.Context(), org, project)
	switch {
	case errors.Is(err, pipeline.ErrAlreadyImported):
		addFlash(c, secure, "info", "Pipeline already imported.")
		c.Redirect(http.StatusFound, "/pipelines")
	case err != nil:
		s.log.Warn().Err(err).Str("pipeline", org+"/"+project).Msg("import failed")
		addFlash(c, secure, "error", "Error importing pipeline: "+err.Error())
		c.Redirect(http.StatusFound, "/import_pipeline")
	default:
		addFlash(c, secure, "success", "Pipeline imported successfully.")
		c.Redirect(http.StatusFound, "/pipelines")
	}
}

type importRequest struct {
	Repository string `json:"repository"`
}

func (s *Server) handleImportAPI(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid JSON body")
		return
	}
	org, project, err := pipeline.ParseRepository(req.Repository)
	if err != nil {
		jsonError(c, http.StatusBadRequest, `Invalid repository format. Use "organization/pipeline_name".`)
		return
	}
	p, err := s.deps.Pipelines.Import(c.Request.Context(), org, project)
	switch {
	case errors.Is(err, pipeline.ErrAlreadyImported):
		c.JSON(http.StatusConflict, gin.H{"error": "Pipeline already imported.", "pipeline": pipelineJSON(p)})
	case err != nil:
		jsonError(c, http.StatusBadGateway, "Error importing pipeline: "+err.Error())
	default:
		c.JSON(http.StatusCreated, gin.H{"success": true, "pipeline": pipelineJSON(p)})
	}
}

func pipelineJSON(p *models.Pipeline) gin.H {
	if p == nil {
		return nil
	}
	return gin.H{
		"id":           p.ID,
		"organization": p.OrgName,
		"project":      p.ProjectName,
		"ref":          p.Ref,
		"ref_type":     p.RefType,
	}
}

func (s *Server) handlePipeline(c *gin.Context) {
	org, project := c.Param("org"), c.Param("project")
	refType, ref := c.Param("ref_type"), c.Param("ref")
	secure := s.deps.CookieSecure

	p, err := s.deps.Pipelines.Get(org, project)
	if err != nil {
		addFlash(c, secure, "error", "Pipeline not found.")
		c.Redirect(http.StatusFound, "/pipelines")
		return
	}
	d, err := s.deps.Pipelines.Detail(c.Request.Context(), org, project, refType, ref)
	switch {
	case errors.Is(err, remote.ErrInvalidRefType):
		addFlash(c, secure, "error", "Invalid reference type")
		c.Redirect(http.StatusFound, "/pipelines")
		return
	case errors.Is(err, remote.ErrRefNotFound):
		addFlash(c, secure, "error", "Unknown "+refType+" "+ref)
		c.Redirect(http.StatusFound, "/pipelines")
		return
	case err != nil:
		s.log.Warn().Err(err).Str("pipeline", p.FullName()).Msg("pipeline detail")
		addFlash(c, secure, "error", "Error loading pipeline: "+err.Error())
		c.Redirect(http.StatusFound, "/pipelines")
		return
	}

	cfgs, err := s.deps.Configs.List()
	if err != nil {
		s.log.Warn().Err(err).Msg("list configs")
	}
	s.render(c, http.StatusOK, "pipeline.html", d.Name(), gin.H{
		"Pipeline": p,
		"Detail":   d,
		"Defaults": d.Schema.Defaults(),
		"Configs":  cfgs,
		"Backends": s.deps.Storage.Summaries(),
		"SelfURL":  "/pipeline/" + url.PathEscape(org) + "/" + url.PathEscape(project),
	})
}
