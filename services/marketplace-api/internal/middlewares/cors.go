package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
)

// CORS adapts go-chi/cors to gin. origins is a comma-separated list.
func CORS(origins string) gin.HandlerFunc {
	var allowed []string
	for _, p := range strings.Split(origins, ",") {
		if o := strings.TrimRight(strings.TrimSpace(p), "/"); o != "" {
			allowed = append(allowed, o)
		}
	}
	h := cors.New(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	return func(c *gin.Context) {
		passed := false
		h.Handler(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			passed = true
			c.Request = r
		})).ServeHTTP(c.Writer, c.Request)
		if !passed {
			// preflight answered by cors
			c.Abort()
			return
		}
		c.Next()
	}
}
