package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/rajmehta89/call-agent-backend/internal/api/handlers"
	"github.com/rajmehta89/call-agent-backend/internal/api/middleware"
)

type Deps struct {
	Piopiy *handlers.PiopiyHandler
	Calls  *handlers.CallHandler
	Media  *handlers.MediaHandler

	// JWTSecret protects the operator API when set.
	JWTSecret string
	JWTIssuer string
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// Provider webhooks
	r.POST("/python/inbound", d.Piopiy.Inbound)
	r.POST("/piopiy/inbound", d.Piopiy.Inbound)
	r.POST("/piopiy/events", d.Piopiy.Events)

	// Called by the provider, so never behind operator auth
	r.POST("/api/call-hangup/:session_id", d.Calls.CallHangup)

	api := r.Group("/api")
	if d.JWTSecret != "" {
		api.Use(middleware.JWTAuth(d.JWTSecret, d.JWTIssuer), middleware.RequireOperator())
	}
	api.POST("/hangup-call", d.Piopiy.HangupCall)
	api.POST("/make-call", d.Calls.MakeCall)
	api.GET("/call-status/:session_id", d.Calls.CallStatus)
	api.GET("/call-turns/:session_id", d.Calls.CallTurns)
	api.GET("/active-calls", d.Calls.ActiveCalls)

	// Media stream
	r.GET("/ws", d.Media.Stream)
	r.GET("/ws/:session_id", d.Media.Stream)
}
