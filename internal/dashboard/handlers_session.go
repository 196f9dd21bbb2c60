package dashboard

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/liteflow/internal/auth"
	"github.com/zulandar/liteflow/internal/cache"
	"github.com/zulandar/liteflow/internal/sysinfo"
)

const invalidPassword = "Invalid password."

func (s *Server) handleLoginPage(c *gin.Context) {
	s.render(c, http.StatusOK, "login.html", "Login", gin.H{})
}

func (s *Server) handleLogin(c *gin.Context) {
	if !s.deps.Verifier.Verify(c.PostForm("password")) {
		s.log.Warn().Str("client", c.ClientIP()).Msg("failed login")
		if isAJAX(c) {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": invalidPassword})
			return
		}
		s.render(c, http.StatusOK, "login.html", "Login", gin.H{"Error": invalidPassword})
		return
	}

	tokens, err := s.deps.Issuer.Issue()
	if err != nil {
		s.log.Error().Err(err).Msg("issue tokens")
		jsonError(c, http.StatusInternalServerError, "could not start a session")
		return
	}
	auth.SetTokens(c, tokens, s.deps.CookieSecure)
	if isAJAX(c) {
		c.JSON(http.StatusOK, gin.H{"success": true, "redirect": "/home"})
		return
	}
	c.Redirect(http.StatusFound, "/home")
}

func (s *Server) handleLogout(c *gin.Context) {
	auth.ClearTokens(c, s.deps.CookieSecure)
	c.Redirect(http.StatusFound, auth.LoginPath)
}

func (s *Server) handleHome(c *gin.Context) {
	ctx := c.Request.Context()
	host := sysinfo.Collect(ctx, s.deps.RootDir)
	software, err := cache.Fetch(s.deps.Cache, cache.Key("system", "software"), func() ([]sysinfo.Software, error) {
		return sysinfo.Versions(ctx, s.deps.Software), nil
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("software versions")
	}
	s.render(c, http.StatusOK, "home.html", "Home", gin.H{
		"Host":     host,
		"Software": software,
		"Now":      time.Now(),
	})
}
