package dashboard

import (
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"

	"github.com/zulandar/liteflow/internal/configs"
	"github.com/zulandar/liteflow/internal/models"
	"github.com/zulandar/liteflow/internal/nextflow"
	"github.com/zulandar/liteflow/internal/pipeline"
	"github.com/zulandar/liteflow/internal/remote"
	"github.com/zulandar/liteflow/internal/runconfig"
)

func runConfigJSON(rc models.RunConfig) gin.H {
	out := gin.H{
		"id":               rc.ID,
		"organization":     rc.Organization,
		"pipeline_name":    rc.PipelineName,
		"run_name":         rc.RunName,
		"ref":              rc.Ref,
		"ref_type":         rc.RefType,
		"nextflow_version": rc.NextflowVersion,
		"parameters":       rc.Parameters,
		"created_at":       rc.CreatedAt,
		"config_file":      nil,
	}
	if rc.Config != nil {
		out["config_file"] = rc.Config.Filename
	}
	return out
}

func (s *Server) handleRunConfigs(c *gin.Context) {
	list, err := s.deps.RunConfigs.List()
	if err != nil {
		s.log.Error().Err(err).Msg("list run configs")
		addFlash(c, s.deps.CookieSecure, "error", "Error loading run configurations: "+err.Error())
	}
	s.render(c, http.StatusOK, "run_configs.html", "Run configurations", gin.H{"RunConfigs": list})
}

func (s *Server) handleRunConfigsAPI(c *gin.Context) {
	list, err := s.deps.RunConfigs.List()
	if err != nil {
		jsonError(c, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]gin.H, 0, len(list))
	for _, rc := range list {
		out = append(out, runConfigJSON(rc))
	}
	c.JSON(http.StatusOK, gin.H{"run_configs": out})
}

func (s *Server) handleRunConfig(c *gin.Context) {
	org, name, run := c.Param("org"), c.Param("pipeline"), c.Param("run")
	rc, err := s.deps.RunConfigs.Get(org, name, run)
	if err != nil {
		if errors.Is(err, runconfig.ErrNotFound) {
			addFlash(c, s.deps.CookieSecure, "error", "Run configuration not found.")
		} else {
			addFlash(c, s.deps.CookieSecure, "error", "Error loading run configuration: "+err.Error())
		}
		c.Redirect(http.StatusFound, "/run_configs")
		return
	}

	params, err := yaml.Marshal(rc.Parameters)
	if err != nil {
		s.log.Warn().Err(err).Str("run", run).Msg("encode params")
	}
	var nfConfig string
	if path, err := s.deps.RunConfigs.ConfigFile(org, name, run); err == nil && path != "" {
		if data, err := os.ReadFile(path); err == nil {
			nfConfig = string(data)
		}
	}
	s.render(c, http.StatusOK, "run_config.html", rc.RunName, gin.H{
		"Run":      rc,
		"Params":   string(params),
		"NFConfig": nfConfig,
	})
}

func (s *Server) handleDeleteRunConfig(c *gin.Context) {
	err := s.deps.RunConfigs.Delete(c.Param("org"), c.Param("pipeline"), c.Param("run"))
	switch {
	case errors.Is(err, runconfig.ErrNotFound):
		jsonError(c, http.StatusNotFound, "Run configuration not found.")
	case err != nil:
		jsonError(c, http.StatusInternalServerError, err.Error())
	default:
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Run configuration deleted!"})
	}
}

type createRunRequest struct {
	Organization    string         `json:"organization"`
	Project         string         `json:"project"`
	RunName         string         `json:"run_name"`
	Ref             string         `json:"ref"`
	RefType         string         `json:"ref_type"`
	NextflowVersion string         `json:"nextflow_version"`
	Parameters      map[string]any `json:"parameters"`
	SelectedConfig  string         `json:"selected_config"`
}

func (s *Server) handleCreateRunConfig(c *gin.Context) {
	var req createRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Parameters == nil {
		req.Parameters = map[string]any{}
	}
	ctx := c.Request.Context()

	p, err := s.deps.Pipelines.Get(req.Organization, req.Project)
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			jsonError(c, http.StatusNotFound, "Pipeline not found")
			return
		}
		jsonError(c, http.StatusInternalServerError, err.Error())
		return
	}

	var configID *uint
	if req.SelectedConfig != "" {
		cfg, err := s.deps.Configs.Get(req.SelectedConfig)
		if err != nil {
			if errors.Is(err, configs.ErrNotFound) || errors.Is(err, configs.ErrValidation) {
				jsonError(c, http.StatusBadRequest, msgConfigNotFound)
				return
			}
			jsonError(c, http.StatusInternalServerError, err.Error())
			return
		}
		configID = &cfg.ID
	}

	sha, err := s.deps.Pipelines.Resolve(ctx, p.OrgName, p.ProjectName, req.RefType, req.Ref)
	switch {
	case errors.Is(err, remote.ErrInvalidRefType), errors.Is(err, remote.ErrRefNotFound):
		jsonError(c, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		jsonError(c, http.StatusBadGateway, err.Error())
		return
	}
	if err := s.deps.Pipelines.ValidateParams(ctx, p.OrgName, p.ProjectName, sha, req.Parameters); err != nil {
		if errors.Is(err, nextflow.ErrInvalidParams) {
			jsonError(c, http.StatusBadRequest, err.Error())
			return
		}
		jsonError(c, http.StatusBadGateway, err.Error())
		return
	}

	rc, err := s.deps.RunConfigs.Create(runconfig.CreateOpts{
		Organization:    p.OrgName,
		PipelineName:    p.ProjectName,
		RunName:         req.RunName,
		PipelineID:      p.ID,
		Ref:             req.Ref,
		RefType:         req.RefType,
		NextflowVersion: req.NextflowVersion,
		Parameters:      req.Parameters,
		ConfigID:        configID,
	})
	switch {
	case errors.Is(err, runconfig.ErrValidation), errors.Is(err, runconfig.ErrExists):
		jsonError(c, http.StatusBadRequest, err.Error())
	case err != nil:
		jsonError(c, http.StatusInternalServerError, err.Error())
	default:
		c.JSON(http.StatusCreated, gin.H{
			"success":    true,
			"message":    "Run configuration created successfully",
			"run_config": runConfigJSON(*rc),
			"redirect":   "/run_configs",
		})
	}
}
