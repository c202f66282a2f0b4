package handlers

import (
	"trace-rescue/internal/api/middleware"

	"github.com/gin-gonic/gin"
)

// RouteRegistrar wird von allen Handlern implementiert
type RouteRegistrar interface {
	RegisterRoutes(router *gin.Engine)
}

// NewRouter baut die Gin-Engine mit Recovery, Logging und CORS auf.
func NewRouter(handlers ...RouteRegistrar) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(), middleware.CORS())
	for _, h := range handlers {
		h.RegisterRoutes(router)
	}
	return router
}
