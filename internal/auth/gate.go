package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Cookie names carrying the session tokens.
const (
	AccessCookie  = "access_token_cookie"
	RefreshCookie = "refresh_token_cookie"
)

// LoginPath is where unauthenticated requests are sent.
const LoginPath = "/login"

var publicPrefixes = []string{"/static/"}

var publicPaths = map[string]bool{
	LoginPath:      true,
	"/logout":      true,
	"/favicon.ico": true,
}

// IsPublic reports whether path is reachable without a session.
func IsPublic(path string) bool {
	if publicPaths[path] {
		return true
	}
	for _, p := range publicPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// SetTokens writes both session cookies.
func SetTokens(c *gin.Context, t Tokens, secure bool) {
	setCookie(c, AccessCookie, t.Access, t.AccessExpires, secure)
	setCookie(c, RefreshCookie, t.Refresh, t.RefreshExpires, secure)
}

// ClearTokens expires both session cookies.
func ClearTokens(c *gin.Context, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AccessCookie, "", -1, "/", "", secure, true)
	c.SetCookie(RefreshCookie, "", -1, "/", "", secure, true)
}

func setCookie(c *gin.Context, name, value string, expires time.Time, secure bool) {
	maxAge := int(time.Until(expires).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", secure, true)
}

// Gate returns middleware requiring a valid access token on every non-public
// route. An expired access token is replaced when the refresh token is still
// valid; anything else redirects to the login page.
func Gate(iss *Issuer, secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsPublic(c.Request.URL.Path) {
			c.Next()
			return
		}
		if tok, err := c.Cookie(AccessCookie); err == nil && tok != "" {
			if _, err := iss.Parse(tok, TypeAccess); err == nil {
				c.Next()
				return
			}
		}
		if tok, err := c.Cookie(RefreshCookie); err == nil && tok != "" {
			if _, err := iss.Parse(tok, TypeRefresh); err == nil {
				access, exp, err := iss.IssueAccess()
				if err == nil {
					setCookie(c, AccessCookie, access, exp, secure)
					c.Next()
					return
				}
			}
		}
		c.Redirect(http.StatusFound, LoginPath)
		c.Abort()
	}
}
