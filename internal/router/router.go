package router

import (
	"solver-bench/internal/handler"
	"solver-bench/internal/service"

	"github.com/gin-gonic/gin"
)

func SetupRouter(svc *service.ServiceContext) *gin.Engine {
	r := gin.Default()

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	resultsHandler := handler.NewResultsHandler(svc)

	api := r.Group("/api")
	{
		api.GET("/results", resultsHandler.ListResults)
		api.GET("/report", resultsHandler.Report)

		stats := api.Group("/stats")
		{
			stats.GET("/success-rate", resultsHandler.SuccessRate)
			stats.GET("/correct-rate", resultsHandler.CorrectRate)
			stats.GET("/shgm", resultsHandler.Shgm)
		}

		runs := api.Group("/runs")
		{
			runs.GET("", resultsHandler.ListRuns)
			runs.POST("", resultsHandler.StartRun)
		}
	}

	return r
}
