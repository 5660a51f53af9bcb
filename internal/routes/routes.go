// internal/routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"obd-service/internal/bus"
	"obd-service/internal/config"
	"obd-service/internal/handler"
	"obd-service/internal/middleware"
	"obd-service/internal/service"
	"obd-service/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config           *config.Config
	logger           *zap.Logger
	eventBus         *bus.EventBus
	engineService    *service.EngineService
	discoveryService *service.DiscoveryService
}

// NewRouter creates a new router instance
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	eventBus *bus.EventBus,
	engineService *service.EngineService,
	discoveryService *service.DiscoveryService,
) *Router {
	return &Router{
		config:           config,
		logger:           logger,
		eventBus:         eventBus,
		engineService:    engineService,
		discoveryService: discoveryService,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	// Set Gin mode
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Create Gin engine
	router := gin.New()

	// Add middleware
	r.addMiddleware(router)

	// Add routes
	r.addRoutes(router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	// Recovery middleware
	router.Use(middleware.RecoveryMiddleware(r.logger))

	// Request ID middleware
	router.Use(middleware.RequestIDMiddleware())

	// Logging middleware
	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	// CORS middleware
	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	// Create handlers
	healthHandler := handler.NewHealthHandler(r.engineService, r.config, r.logger)
	engineHandler := handler.NewEngineHandler(r.engineService, r.logger)
	discoveryHandler := handler.NewDiscoveryHandler(r.discoveryService, r.logger)
	wsHandler := handler.NewWebSocketHandler(r.engineService, r.eventBus, r.config, r.logger)

	// Health check routes
	r.addHealthRoutes(router, healthHandler)

	// API v1 routes
	apiV1 := router.Group("/api/v1")
	r.addEngineRoutes(apiV1, engineHandler)
	r.addDiscoveryRoutes(apiV1, discoveryHandler)

	// WebSocket routes
	r.addWebSocketRoutes(router, wsHandler)

	// Documentation routes
	r.addDocumentationRoutes(router)

	r.logger.Info("All routes configured successfully")
}

// addHealthRoutes sets up health check routes
func (r *Router) addHealthRoutes(router *gin.Engine, handler *handler.HealthHandler) {
	health := router.Group("")
	handler.RegisterRoutes(health)
}

// addEngineRoutes sets up diagnostic engine routes
func (r *Router) addEngineRoutes(api *gin.RouterGroup, handler *handler.EngineHandler) {
	handler.RegisterRoutes(api)
}

// addDiscoveryRoutes sets up port discovery routes
func (r *Router) addDiscoveryRoutes(api *gin.RouterGroup, handler *handler.DiscoveryHandler) {
	handler.RegisterRoutes(api)
}

// addWebSocketRoutes sets up WebSocket routes
func (r *Router) addWebSocketRoutes(router *gin.Engine, handler *handler.WebSocketHandler) {
	ws := router.Group("/ws")
	handler.RegisterRoutes(ws)
}

// addDocumentationRoutes sets up documentation routes
func (r *Router) addDocumentationRoutes(router *gin.Engine) {
	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	// Swagger redirect for convenience
	router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
}
