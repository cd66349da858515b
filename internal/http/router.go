// README: HTTP router registration.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"carpool/internal/http/handlers"
	"carpool/internal/http/middleware"
	"carpool/internal/modules/pricing"
	"carpool/internal/modules/request"
	"carpool/internal/modules/ride"
	"carpool/internal/modules/trip"
)

type RouterDeps struct {
	Pricing  *pricing.Service
	Trips    *trip.Service
	Rides    *ride.Service
	Requests *request.Service
	Logger   *slog.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(
		middleware.Recovery(deps.Logger),
		middleware.Logging(deps.Logger),
		middleware.Metrics(),
	)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	pricingHandler := handlers.NewPricingHandler(deps.Pricing, deps.Trips)
	api.POST("/pricing/quote", pricingHandler.Quote)
	api.POST("/pricing/split", pricingHandler.Split)
	api.POST("/pricing/refit", pricingHandler.Refit)
	api.POST("/pricing/refund-preview", pricingHandler.RefundPreview)

	tripHandler := handlers.NewTripHandler(deps.Trips)
	api.POST("/trips/estimate", tripHandler.Estimate)

	rideHandler := handlers.NewRideHandler(deps.Rides)
	api.POST("/rides", rideHandler.Post)
	api.GET("/rides/:id", rideHandler.Get)
	api.POST("/rides/:id/bookings", rideHandler.BookSeat)
	api.POST("/rides/:id/complete", rideHandler.Complete)
	api.POST("/rides/:id/cancel", rideHandler.Cancel)
	api.GET("/rides/:id/earnings", rideHandler.Earnings)

	api.GET("/bookings/:id", rideHandler.GetBooking)
	api.POST("/bookings/:id/approve", rideHandler.Approve)
	api.POST("/bookings/:id/reject", rideHandler.Reject)
	api.POST("/bookings/:id/pay", rideHandler.Pay)
	api.POST("/bookings/:id/confirm", rideHandler.Confirm)
	api.POST("/bookings/:id/cancel", rideHandler.CancelBooking)

	requestHandler := handlers.NewRequestHandler(deps.Requests)
	api.POST("/requests", requestHandler.Create)
	api.GET("/requests/:id", requestHandler.Get)
	api.POST("/requests/:id/quote", requestHandler.Quote)
	api.POST("/requests/:id/accept-quote", requestHandler.AcceptQuote)
	api.POST("/requests/:id/decline-quote", requestHandler.DeclineQuote)
	api.POST("/requests/:id/decline", requestHandler.Decline)
	api.POST("/requests/:id/cancel", requestHandler.Cancel)
	api.POST("/requests/:id/book", requestHandler.Book)

	return r
}
