package dashboard

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

const flashCookie = "liteflow_flash"

// flash is a one-shot message shown on the next rendered page.
type flash struct {
	Category string `json:"c"`
	Message  string `json:"m"`
}

// addFlash queues a message for the next page render.
func addFlash(c *gin.Context, secure bool, category, message string) {
	msgs := readFlashes(c)
	msgs = append(msgs, flash{Category: category, Message: message})
	data, err := json.Marshal(msgs)
	if err != nil {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(flashCookie, base64.RawURLEncoding.EncodeToString(data), 300, "/", "", secure, true)
	// Make the message visible to a render in this same request.
	c.Set(flashCookie, msgs)
}

func readFlashes(c *gin.Context) []flash {
	if v, ok := c.Get(flashCookie); ok {
		if msgs, ok := v.([]flash); ok {
			return msgs
		}
	}
	raw, err := c.Cookie(flashCookie)
	if err != nil || raw == "" {
		return nil
	}
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil
	}
	var msgs []flash
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil
	}
	return msgs
}

// popFlashes returns the queued messages and clears the cookie.
func popFlashes(c *gin.Context, secure bool) []flash {
	msgs := readFlashes(c)
	if len(msgs) > 0 {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(flashCookie, "", -1, "/", "", secure, true)
		c.Set(flashCookie, []flash(nil))
	}
	return msgs
}
