package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	router.Use(cors.Default())

	api := router.Group("/api")
	{
		api.POST("/analyze", handler.Analyze)
		api.GET("/maturity/:area", handler.GetMaturity)
		api.POST("/maturity/:area/record", handler.RecordMaturity)
		api.GET("/health", handler.Health)
	}
}
