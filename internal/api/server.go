package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/auth"
	"github.com/fathima-sithara/realtime-service/internal/chat"
	"github.com/fathima-sithara/realtime-service/internal/metrics"
	"github.com/fathima-sithara/realtime-service/internal/repository"
	"github.com/fathima-sithara/realtime-service/internal/ws"
)

// Server wires the websocket endpoint and the read-only REST surface into
// one fiber app.
type Server struct {
	service       *chat.Service
	users         repository.UserRepository
	conversations repository.ConversationRepository
	log           *zap.SugaredLogger
}

func NewServer(validator auth.Validator, wsHandler *ws.Handler, svc *chat.Service,
	users repository.UserRepository, conversations repository.ConversationRepository,
	log *zap.SugaredLogger) *fiber.App {

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	s := &Server{service: svc, users: users, conversations: conversations, log: log}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	v1 := app.Group("/v1")

	v1.Get("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	v1.Get("/ws", websocket.New(wsHandler.Handle))

	authed := v1.Group("", auth.Middleware(validator))
	authed.Get("/users", s.listUsers)
	authed.Get("/conversations/:userId/messages", s.getHistory)

	return app
}
