package dashboard

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/liteflow/internal/configs"
	"github.com/zulandar/liteflow/internal/models"
)

const (
	msgConfigNotFound = "Configuration not found!"
	msgEnforced       = "Default config is enforced by system configuration!"
	msgDeleteDefault  = "Cannot delete the default configuration!"
)

func configJSON(cfg *models.Config) gin.H {
	return gin.H{
		"id":         cfg.ID,
		"name":       cfg.Name,
		"filename":   cfg.Filename,
		"is_default": cfg.IsDefault,
		"created_at": cfg.CreatedAt,
		"updated_at": cfg.UpdatedAt,
	}
}

// configError maps registry errors onto JSON responses.
func configError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, configs.ErrNotFound):
		jsonError(c, http.StatusNotFound, msgConfigNotFound)
	case errors.Is(err, configs.ErrEnforced):
		jsonError(c, http.StatusBadRequest, msgEnforced)
	case errors.Is(err, configs.ErrDefaultConfig):
		jsonError(c, http.StatusBadRequest, msgDeleteDefault)
	case errors.Is(err, configs.ErrValidation), errors.Is(err, configs.ErrExists):
		jsonError(c, http.StatusBadRequest, err.Error())
	default:
		jsonError(c, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleConfigs(c *gin.Context) {
	list, err := s.deps.Configs.List()
	if err != nil {
		s.log.Error().Err(err).Msg("list configs")
		addFlash(c, s.deps.CookieSecure, "error", "Error loading configurations: "+err.Error())
	}
	def, err := s.deps.Configs.GetDefault()
	if err != nil {
		def = nil
	}
	s.render(c, http.StatusOK, "configs.html", "Configurations", gin.H{
		"Configs":          list,
		"Default":          def,
		"CanChangeDefault": !s.deps.Configs.Enforced(),
	})
}

func (s *Server) handleCreateConfig(c *gin.Context) {
	filename := c.PostForm("filename")
	cfg, err := s.deps.Configs.Create(c.PostForm("name"), filename)
	if err != nil {
		configError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Configuration for '" + cfg.Filename + "' created successfully!",
		"config":  configJSON(cfg),
	})
}

func (s *Server) handleSetDefault(c *gin.Context) {
	if err := s.deps.Configs.SetDefault(c.Param("filename")); err != nil {
		configError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Default configuration updated!"})
}

func (s *Server) handleEditConfigPage(c *gin.Context) {
	cfg, err := s.deps.Configs.Get(c.Param("filename"))
	if err == nil {
		var content string
		if content, err = s.deps.Configs.Content(cfg.Filename); err == nil {
			s.render(c, http.StatusOK, "edit_config.html", cfg.Name, gin.H{
				"Config":   cfg,
				"Content":  content,
				"ReadOnly": cfg.IsDefault && s.deps.Configs.Enforced(),
			})
			return
		}
	}
	if errors.Is(err, configs.ErrNotFound) || errors.Is(err, configs.ErrValidation) {
		addFlash(c, s.deps.CookieSecure, "error", msgConfigNotFound)
	} else {
		addFlash(c, s.deps.CookieSecure, "error", "Error loading configuration: "+err.Error())
	}
	c.Redirect(http.StatusFound, "/configs")
}

func (s *Server) handleEditConfig(c *gin.Context) {
	if _, err := s.deps.Configs.Update(c.Param("filename"), c.PostForm("content")); err != nil {
		configError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Configuration saved!"})
}

func (s *Server) handleDeleteConfig(c *gin.Context) {
	if err := s.deps.Configs.Delete(c.Param("filename")); err != nil {
		configError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Configuration deleted!"})
}
