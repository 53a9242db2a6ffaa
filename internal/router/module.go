package router

import "github.com/gin-gonic/gin"

// Module is a feature area (auth today) that mounts its routes on the
// shared /api group.
type Module interface {
	Register(rg *gin.RouterGroup)
}
