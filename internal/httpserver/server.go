// Package httpserver exposes the services over JSON HTTP.
package httpserver

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/nitematch/nitematch/internal/errors"
	"github.com/nitematch/nitematch/internal/interfaces"
	"github.com/nitematch/nitematch/internal/middleware"
	"github.com/nitematch/nitematch/internal/monitoring"
	"github.com/nitematch/nitematch/internal/notification"
	"github.com/nitematch/nitematch/internal/phase"
)

// Options wires the router to its collaborators
type Options struct {
	Profiles interfaces.ProfileServiceInterface
	Auth     interfaces.AuthServiceInterface
	Matches  interfaces.MatchingServiceInterface
	Messages interfaces.MessagingServiceInterface

	Gate  *phase.Gate
	Clock phase.Clock

	// Monitoring serves the ops endpoints and records request metrics; nil
	// disables both.
	Monitoring *monitoring.MonitoringMiddleware
	// OTel records request metrics through the meter provider when set.
	OTel *monitoring.OTelInstruments
	// TraceService names the otelgin server spans; empty disables tracing.
	TraceService string

	Logging *middleware.LoggingConfig
	Errors  middleware.ErrorHandlerConfig
	// SecureCookies marks the session cookie Secure.
	SecureCookies bool
}

// NewRouter builds the gin engine with every route and middleware attached
func NewRouter(opts Options) *gin.Engine {
	if opts.Clock == nil {
		opts.Clock = phase.SystemClock
	}
	if opts.Logging == nil {
		opts.Logging = middleware.DefaultLoggingConfig()
	}

	useJSONFieldNames()

	r := gin.New()
	if opts.TraceService != "" {
		r.Use(otelgin.Middleware(opts.TraceService))
	}
	r.Use(middleware.RequestLogger(opts.Logging))
	r.Use(middleware.ErrorHandler(opts.Errors))
	r.Use(middleware.Recovery())
	if opts.Monitoring != nil {
		r.Use(opts.Monitoring.GinMiddleware())
		opts.Monitoring.RegisterRoutes(r)
	}
	if opts.OTel != nil {
		r.Use(opts.OTel.GinMiddleware())
	}

	h := &handler{
		profiles:      opts.Profiles,
		auth:          opts.Auth,
		matches:       opts.Matches,
		messages:      opts.Messages,
		gate:          opts.Gate,
		clock:         opts.Clock,
		secureCookies: opts.SecureCookies,
	}

	collection := middleware.RequirePhase(opts.Gate, opts.Clock, phase.Collection)
	reveal := middleware.RequirePhase(opts.Gate, opts.Clock, phase.Reveal)
	session := middleware.NewAuthMiddleware(opts.Auth).RequireSession()

	api := r.Group("/api")
	api.GET("/phase", h.phase)
	api.GET("/questionnaire", h.questionnaire)
	api.POST("/profiles", collection, h.submitProfile)

	api.POST("/auth/login", reveal, h.login)
	api.POST("/auth/magic-link", reveal, h.requestMagicLink)
	api.POST("/auth/logout", session, h.logout)
	r.GET(notification.VerifyPath, reveal, h.verifyMagicLink)

	api.PATCH("/me/contact", session, h.updateContact)

	// The phase check runs first so a locked reveal answers RESULTS_LOCKED
	// whether or not a session is present.
	revealed := api.Group("", reveal, session)
	revealed.GET("/me", h.me)
	revealed.GET("/matches", h.listMatches)
	revealed.GET("/chats", h.conversations)
	revealed.GET("/chats/:counterpart/messages", h.listMessages)
	revealed.POST("/chats/:counterpart/messages", h.sendMessage)
	revealed.GET("/chats/:counterpart/unread", h.unreadCount)

	r.NoRoute(func(c *gin.Context) {
		middleware.Abort(c, errors.NewNotFoundError("route"))
	})
	return r
}

// New wraps handler in an http.Server with conservative timeouts
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
