package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/citytransit/tracking-service/internal/application"
	"github.com/citytransit/tracking-service/internal/config"
	"github.com/citytransit/tracking-service/internal/domain/entity"
	"github.com/citytransit/tracking-service/internal/domain/repository"
	"github.com/citytransit/tracking-service/internal/infrastructure/websocket"
	"github.com/citytransit/tracking-service/internal/transport/http/middleware"
)

// Handlers contains the HTTP handlers for the tracking service.
type Handlers struct {
	tracking *application.TrackingService
	admin    *application.AdminService
	auth     *application.AuthService
	wsHub    *websocket.Hub
	config   *config.Config
}

// NewHandlers creates new HTTP handlers.
func NewHandlers(
	tracking *application.TrackingService,
	admin *application.AdminService,
	auth *application.AuthService,
	wsHub *websocket.Hub,
	cfg *config.Config,
) *Handlers {
	return &Handlers{tracking: tracking, admin: admin, auth: auth, wsHub: wsHub, config: cfg}
}

// SetupRoutes configures the HTTP routes.
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS())
	router.Use(middleware.Metrics())

	router.GET("/health", h.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Push channel
	router.GET("/ws", h.wsHub.HandleWebSocket)

	api := router.Group("/api")
	{
		// Live tracking
		bus := api.Group("/bus")
		{
			bus.POST("/update-location", h.updateLocation)
			bus.GET("/:id/live", h.liveSnapshot)
		}

		// Stored polyline lookup by route name
		api.GET("/routes-with-polyline", h.routeWithPolyline)

		// Driver credentials
		api.POST("/driver/login", h.driverLogin)

		// Admin management of durable records
		admin := api.Group("/admin")
		{
			admin.POST("/routes", h.createRoute)
			admin.GET("/routes", h.listRoutes)
			admin.POST("/vehicles", h.registerVehicle)
			admin.POST("/drivers", h.registerDriver)
		}
	}
}

func (h *Handlers) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.config.ServiceName,
	})
}

// updateLocation is the vehicle ingest endpoint.
func (h *Handlers) updateLocation(c *gin.Context) {
	var req application.LocationReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	update, err := h.tracking.IngestReport(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, application.ErrInvalidCoordinates):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		case errors.Is(err, repository.ErrVehicleNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "bus not found"})
		default:
			logrus.Errorf("Failed to ingest location report: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to process location report"})
		}
		return
	}

	c.JSON(http.StatusOK, update)
}

// liveSnapshot serves the on-demand composite for a vehicle.
func (h *Handlers) liveSnapshot(c *gin.Context) {
	update, err := h.tracking.LiveSnapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrVehicleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "bus not found"})
			return
		}
		logrus.Errorf("Failed to serve live snapshot: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to read vehicle state"})
		return
	}

	c.JSON(http.StatusOK, update)
}

// routeWithPolyline serves the stored polyline by route display name.
func (h *Handlers) routeWithPolyline(c *gin.Context) {
	routeName := c.Query("routeName")
	if routeName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "routeName query parameter is required"})
		return
	}

	p, err := h.admin.GetRouteWithPolyline(c.Request.Context(), routeName)
	if err != nil {
		if errors.Is(err, repository.ErrPolylineNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "polyline not found"})
			return
		}
		logrus.Errorf("Failed to fetch polyline: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to fetch polyline"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"_id":       p.RouteID,
		"routeName": p.RouteName,
		"geometry":  p.Geometry,
		"distance":  p.DistanceKm,
		"duration":  p.DurationMin,
	})
}

func (h *Handlers) createRoute(c *gin.Context) {
	var req application.CreateRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	route, err := h.admin.CreateRoute(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, entity.ErrRouteTooFewStops),
			errors.Is(err, entity.ErrRouteInvalidName),
			errors.Is(err, entity.ErrInvalidCoordinate),
			errors.Is(err, application.ErrInvalidGeometry):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		case errors.Is(err, repository.ErrDuplicateKey):
			c.JSON(http.StatusConflict, gin.H{"success": false, "error": "route already exists"})
		default:
			logrus.Errorf("Failed to create route: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to create route"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "route": route})
}

func (h *Handlers) listRoutes(c *gin.Context) {
	routes, err := h.admin.ListRoutes(c.Request.Context())
	if err != nil {
		logrus.Errorf("Failed to list routes: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to list routes"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "routes": routes})
}

func (h *Handlers) registerVehicle(c *gin.Context) {
	var req application.RegisterVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	vehicle, err := h.admin.RegisterVehicle(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRouteNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "route not found"})
		case errors.Is(err, repository.ErrDuplicateKey):
			c.JSON(http.StatusConflict, gin.H{"success": false, "error": "vehicle already registered"})
		default:
			logrus.Errorf("Failed to register vehicle: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to register vehicle"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "vehicle": vehicle})
}

func (h *Handlers) registerDriver(c *gin.Context) {
	var req application.RegisterDriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	driver, err := h.auth.RegisterDriver(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrVehicleNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "vehicle not found"})
		case errors.Is(err, repository.ErrDuplicateKey):
			c.JSON(http.StatusConflict, gin.H{"success": false, "error": "driver already registered"})
		default:
			logrus.Errorf("Failed to register driver: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to register driver"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "driver": driver})
}

func (h *Handlers) driverLogin(c *gin.Context) {
	var req application.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	resp, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, application.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid phone or password"})
			return
		}
		logrus.Errorf("Failed to log driver in: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to log in"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "token": resp.Token, "driver": resp.Driver})
}
