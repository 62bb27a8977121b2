package middleware

import (
	"net/http"
	"net/url"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// Session keys written by the first-party web app's login flow. The
// authorization server shares the session cookie and only reads it.
const (
	SessionUserID = "user_id"
	SessionTeamID = "team_id"
)

// RequireAuth requires a logged-in session. Browser-facing: unauthenticated
// requests are redirected to the web app's login page with a return URL.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID := session.Get(SessionUserID)

		if userID == nil {
			redirectURL := url.QueryEscape(c.Request.URL.String())
			c.Redirect(http.StatusFound, "/login?redirect="+redirectURL)
			c.Abort()
			return
		}

		c.Set("user_id", userID)
		if teamID := session.Get(SessionTeamID); teamID != nil {
			c.Set("team_id", teamID)
		}
		c.Next()
	}
}

// RequireAuthJSON is the API variant of RequireAuth: unauthenticated requests
// get a 401 instead of a login redirect.
func RequireAuthJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID := session.Get(SessionUserID)

		if userID == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			c.Abort()
			return
		}

		c.Set("user_id", userID)
		if teamID := session.Get(SessionTeamID); teamID != nil {
			c.Set("team_id", teamID)
		}
		c.Next()
	}
}
