//go:build release
// +build release

package status

import (
	"github.com/gin-gonic/gin"
)

// initializeGin sets up Gin in release mode for field builds
func initializeGin() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// The status server is reached directly on the station network
	router.SetTrustedProxies(nil)

	return router
}
