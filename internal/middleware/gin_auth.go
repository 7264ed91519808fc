package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GinRequireAuth adapts RequireAuth to Gin. Auth decisions stay
// session-based and provider-agnostic.
func GinRequireAuth(auth *AuthMiddleware) gin.HandlerFunc {
	return ginAdapt(auth.RequireAuth)
}

// GinLoadSession adapts LoadSession to Gin.
func GinLoadSession(auth *AuthMiddleware) gin.HandlerFunc {
	return ginAdapt(auth.LoadSession)
}

func ginAdapt(mw func(http.Handler) http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Bridge handler to allow net/http middleware execution
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Request = r
			c.Next()
		})

		mw(next).ServeHTTP(c.Writer, c.Request)

		// If the middleware already handled the response, stop the chain
		if c.Writer.Written() {
			c.Abort()
		}
	}
}
