package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	api := router.Group("/api")
	{
		dvf := api.Group("/dvf")
		{
			dvf.POST("/import", handler.StartImport)
			dvf.GET("/vintage/:year", handler.GetVintage)
			dvf.DELETE("/vintage/:year", handler.CleanVintage)
			dvf.GET("/imports", handler.ListImportRuns)
			dvf.GET("/imports/:id", handler.GetImportRun)
			dvf.GET("/departments", handler.ListDepartments)
			dvf.GET("/stats", handler.GetGlobalStats)
		}

		market := api.Group("/market")
		{
			market.GET("/snapshot", handler.GetMarketSnapshot)
			market.GET("/listings/:id", handler.GetMarketDataForListing)
			market.GET("/listings/:id/similar", handler.FindSimilarTransactions)
		}

		api.GET("/ws", handler.Notifications)
		api.POST("/update-coordinates", handler.BackfillCoordinates)
	}
}
