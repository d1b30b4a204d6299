// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"log/slog"
	"time"

	_ "chatgraph/docs" // swagger docs
	"chatgraph/internal/bootstrap"
	"chatgraph/internal/config"
	"chatgraph/internal/featureflags"
	"chatgraph/internal/middleware"
	"chatgraph/internal/models"
	"chatgraph/internal/notifications"
	"chatgraph/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	runtime        *bootstrap.Runtime
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	broker       *notifications.Broker
	gateway      *notifications.Gateway
	featureFlags *featureflags.Manager

	gate           *service.Gate
	authService    *service.AuthService
	userService    *service.UserService
	friendService  *service.FriendService
	roomService    *service.RoomService
	messageService *service.MessageService
}

// NewServer builds a server on an initialized runtime. mailer may be nil, in
// which case reset links are logged.
func NewServer(cfg *config.Config, rt *bootstrap.Runtime, mailer service.Mailer) *Server {
	middleware.InitMiddleware(cfg, rt.Redis)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:         cfg,
		runtime:        rt,
		redis:          rt.Redis,
		promMiddleware: middleware.InitMetrics("chatgraph-api"),
		shutdownCtx:    ctx,
		shutdownFn:     cancel,
		broker:         notifications.NewBroker(rt.Redis, cfg.EventFanout),
		gateway:        notifications.NewGateway(),
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
		gate:           service.NewGate(rt.Relationships),
	}

	s.roomService = service.NewRoomService(rt.Relationships, rt.Messages, rt.Users, s.broker)
	s.messageService = service.NewMessageService(rt.Relationships, rt.Messages, s.roomService, s.broker)
	s.friendService = service.NewFriendService(rt.Relationships, rt.Users, rt.Messages, s.broker)
	s.userService = service.NewUserService(rt.Users, rt.Relationships, s.featureFlags)
	s.authService = service.NewAuthService(rt.Users, rt.Relationships, rt.ResetTokens, mailer, middleware.IssueToken,
		service.AuthConfig{FrontendURL: cfg.FrontendURL, ResetTokenTTL: cfg.ResetTokenTTL})

	return s
}

// App builds the Fiber application with middleware and routes.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}
	app := fiber.New(fiber.Config{
		AppName: "chatgraph API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message, Code: codeForStatus(fe.Code)})
			}
			slog.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithAppError(c, err)
		},
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before anything that can short-circuit so error responses
	// still carry the headers.
	app.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.AllowedOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	if !s.config.IsDevOrTest() && s.config.RateLimitEnabled {
		app.Use(limiter.New(limiter.Config{
			Max:        100,
			Expiration: time.Minute,
			Next: func(c *fiber.Ctx) bool {
				return c.Method() == fiber.MethodOptions
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": "Too many requests, please try again later.",
				})
			},
		}))
	}
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	api.Get("/health/live", s.LivenessCheck)
	api.Get("/health/ready", s.ReadinessCheck)
	api.Get("/swagger/*", swagger.HandlerDefault)

	auth := api.Group("/auth")
	auth.Post("/signup", middleware.RateLimit(s.redis, 3, 10*time.Minute, "signup"), s.Signup)
	auth.Post("/login", middleware.RateLimit(s.redis, 10, 5*time.Minute, "login"), s.Login)
	auth.Post("/forgot-password", middleware.RateLimit(s.redis, 3, 15*time.Minute, "forgot_password"), s.ForgotPassword)
	auth.Post("/reset-password", s.ResetPassword)
	auth.Post("/logout", middleware.AuthRequired, s.Logout)
	auth.Post("/ws-ticket", middleware.AuthRequired, s.IssueWSTicket)
	auth.Post("/change-password", middleware.AuthRequired, s.ChangePassword)

	// Websocket upgrades authenticate with a ticket or bearer token.
	api.Get("/ws", middleware.AuthRequired, s.WebsocketUpgrade, s.WebsocketHandler())

	protected := api.Group("", middleware.AuthRequired)
	protected.Get("/feature-flags", s.GetFeatureFlags)

	users := protected.Group("/users")
	users.Get("/me", s.GetMyProfile)
	users.Get("/me/stats", s.GetMyStats)
	users.Get("/search", middleware.RateLimit(s.redis, 30, time.Minute, "search"), s.SearchUsers)
	users.Get("/suggestions", s.GetSuggestions)
	users.Get("/:id", s.GetUserProfile)

	questions := protected.Group("/questions")
	questions.Get("/", s.GetQuestions)
	questions.Post("/answer", s.SubmitAnswer)

	friends := protected.Group("/friends")
	friends.Get("/", s.GetFriends)
	// Specific /requests routes before generic /:id
	friends.Get("/requests/sent", s.GetSentRequests)
	friends.Get("/requests/received", s.GetReceivedRequests)
	friends.Post("/requests/:id/accept", s.AcceptFriendRequest)
	friends.Post("/requests/:id/reject", s.RejectFriendRequest)
	friends.Post("/requests/:id", middleware.RateLimit(s.redis, 20, 5*time.Minute, "friend_request"), s.SendFriendRequest)
	friends.Delete("/requests/:id", s.CancelFriendRequest)
	friends.Get("/:id/status", s.GetFriendshipStatus)
	friends.Get("/:id/messages", s.GetFriendMessages)
	friends.Post("/:id/messages", middleware.RateLimit(s.redis, 60, time.Minute, "send_message"), s.SendFriendMessage)
	friends.Delete("/:id", s.ForgetFriend)

	rooms := protected.Group("/rooms")
	rooms.Post("/private/:friendId", s.OpenPrivateRoom)
	rooms.Get("/private/:friendId", s.GetPrivateRoom)
	rooms.Delete("/private/:friendId", s.DeletePrivateRoom)
	rooms.Get("/:id/messages", s.GetRoomMessages)
	rooms.Post("/:id/messages", middleware.RateLimit(s.redis, 60, time.Minute, "send_message"), s.SendRoomMessage)

	groups := protected.Group("/groups")
	groups.Get("/", s.GetGroups)
	groups.Post("/", s.CreateGroup)
	groups.Post("/:id/leave", s.LeaveGroup)
	groups.Get("/:id/members", s.GetGroupMembers)
	groups.Get("/:id/admins/removable", s.GetRemovableAdmins)
	groups.Get("/:id/admins", s.GetGroupAdmins)
	groups.Get("/:id/non-admins", s.GetGroupNonAdmins)
	groups.Post("/:id/members/:userId", s.AddGroupMember)
	groups.Delete("/:id/members/:userId", s.RemoveGroupMember)
	groups.Post("/:id/admins/:userId", s.PromoteGroupAdmin)
	groups.Delete("/:id/admins/:userId", s.DemoteGroupAdmin)
	groups.Get("/:id", s.GetGroup)
	groups.Delete("/:id", s.DeleteGroup)

	messages := protected.Group("/messages")
	messages.Post("/:id/delivered", s.MarkMessageDelivered)
	messages.Post("/:id/read", s.MarkMessageRead)
	messages.Delete("/:id", s.DeleteMessage)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck pings every connected store.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	checks := fiber.Map{}
	status := fiber.StatusOK
	overall := "healthy"
	for _, check := range s.runtime.Checks() {
		if err := check.Ping(ctx); err != nil {
			checks[check.Name] = "unhealthy"
			status = fiber.StatusServiceUnavailable
			overall = "unhealthy"
			slog.WarnContext(ctx, "readiness check failed", slog.String("check", check.Name), slog.String("error", err.Error()))
			continue
		}
		checks[check.Name] = "healthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": checks,
		"time":   time.Now(),
	})
}

// Start starts the server
func (s *Server) Start() error {
	app := s.App()
	slog.Info("server starting", slog.String("port", s.config.Port), slog.String("event_fanout", s.broker.Mode()))
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Ends every session's subscription and forwarding goroutine.
	s.shutdownFn()

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			slog.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if err := s.gateway.Shutdown(ctx); err != nil {
		slog.Error("error shutting down gateway", slog.String("error", err.Error()))
	}

	if err := s.runtime.Close(ctx); err != nil {
		slog.Error("error closing stores", slog.String("error", err.Error()))
	}

	slog.Info("server shutdown complete")
	return nil
}
