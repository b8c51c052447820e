package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter builds the gin engine with every billing route registered.
func NewRouter(handlers *Handlers, middleware ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware...)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1")
	{
		v1.POST("/connection", handlers.StartConnection)
		v1.DELETE("/connection", handlers.EndConnection)
		v1.GET("/connection", handlers.GetConnection)

		v1.POST("/products/query", handlers.QueryProductDetails)

		v1.POST("/purchases", handlers.Purchase)
		v1.POST("/purchases/query", handlers.QueryPurchases)
		v1.POST("/purchases/verify", handlers.VerifyPurchase)
		v1.POST("/purchases/acknowledge", handlers.AcknowledgePurchase)
		v1.POST("/purchases/consume", handlers.ConsumePurchase)

		v1.PUT("/logging", handlers.UpdateLogging)
		v1.POST("/lifecycle/resume", handlers.NotifyResume)

		v1.GET("/signals", handlers.ListSignals)
		v1.GET("/events", handlers.ServeEvents)
	}

	return router
}
