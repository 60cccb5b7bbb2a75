package router

import (
	"github.com/gin-gonic/gin"
	"github.com/mkobayashi/kaitori-backend/config"
	"github.com/mkobayashi/kaitori-backend/internal/app/controller"
	"github.com/mkobayashi/kaitori-backend/internal/app/model"
	"github.com/mkobayashi/kaitori-backend/internal/middleware"
)

type Router struct {
	variantController *controller.VariantController
	cartController    *controller.CartController
	requestController *controller.RequestController
	authMiddleware    *middleware.AuthMiddleware
	config            *config.Config
}

func NewRouter(
	variantController *controller.VariantController,
	cartController *controller.CartController,
	requestController *controller.RequestController,
	authMiddleware *middleware.AuthMiddleware,
	cfg *config.Config,
) *Router {
	return &Router{
		variantController: variantController,
		cartController:    cartController,
		requestController: requestController,
		authMiddleware:    authMiddleware,
		config:            cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	gin.SetMode(r.config.Server.GinMode)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.LoggingMiddleware())
	router.Use(corsMiddleware(r.config.CORS.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"message": "KAITORI API is running",
		})
	})

	v1 := router.Group("/api/v1")
	{
		variants := v1.Group("/variants")
		{
			variants.GET("", r.variantController.ListVariants)
			variants.GET("/:id", r.variantController.GetVariantByID)
		}

		cart := v1.Group("/cart", r.authMiddleware.Authenticate())
		{
			cart.POST("/session", r.cartController.CreateSession)
			cart.GET("", r.cartController.GetCart)
			cart.POST("/items", r.cartController.AddItem)
			cart.PUT("/items/:id", r.cartController.UpdateQuantity)
			cart.DELETE("/items/:id", r.cartController.RemoveItem)
			cart.DELETE("", r.cartController.Clear)
		}

		v1.POST("/checkout", r.authMiddleware.Authenticate(), r.cartController.Checkout)

		requests := v1.Group("/requests", r.authMiddleware.Authenticate())
		{
			requests.GET("", r.requestController.ListMine)
			requests.GET("/:id", r.requestController.GetMine)
		}

		admin := v1.Group("/admin",
			r.authMiddleware.Authenticate(),
			r.authMiddleware.RequireRole(string(model.RoleStaff), string(model.RoleAdmin)),
		)
		{
			admin.GET("/requests", r.requestController.ListAll)
			admin.PUT("/requests/:id/status", r.requestController.UpdateStatus)
		}
	}

	return router
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, allowedOrigin := range allowedOrigins {
			if origin == allowedOrigin || allowedOrigin == "*" {
				allowed = true
				break
			}
		}

		if allowed {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
