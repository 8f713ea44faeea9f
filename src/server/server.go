package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/hendrywilliam/siren/src/observable"
	"github.com/hendrywilliam/siren/src/websocket"
)

// Session is the part of *websocket.Session the control API drives.
type Session interface {
	ID() string
	URL() string
	RetryCount() int
	Pending() int
	Status() observable.Readable[websocket.Status]
	Data() observable.Readable[*websocket.Message]
	Send(msg websocket.Message, buffer bool) bool
	Open()
	Close(code websocket.CloseCode, reason string)
}

type Arguments struct {
	Session Session
	// Empty disables authentication.
	Token  string
	Logger *slog.Logger
}

type Server struct {
	router  *fiber.App
	session Session
	token   string
	log     *slog.Logger
}

type StatusResponse struct {
	ID          string  `json:"id"`
	URL         string  `json:"url"`
	Status      string  `json:"status"`
	RetryCount  int     `json:"retry_count"`
	Pending     int     `json:"pending"`
	LastMessage *string `json:"last_message"`
}

type SendResponse struct {
	Sent bool `json:"sent"`
}

type CloseRequest struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewServer(args Arguments) *Server {
	log := args.Logger
	if log == nil {
		log = slog.Default()
	}
	server := &Server{
		session: args.Session,
		token:   args.Token,
		log:     log.With("component", "control_api"),
	}
	server.setupRouter()
	return server
}

func (server *Server) setupRouter() {
	router := fiber.New()
	router.Use(server.BearerTokenMiddleware)
	router.Get("/status", server.handleStatus)
	router.Post("/send", server.handleSend)
	router.Post("/open", server.handleOpen)
	router.Post("/close", server.handleClose)
	server.router = router
}

func (server *Server) handleStatus(c fiber.Ctx) error {
	s := server.session
	resp := StatusResponse{
		ID:         s.ID(),
		URL:        s.URL(),
		Status:     s.Status().Value(),
		RetryCount: s.RetryCount(),
		Pending:    s.Pending(),
	}
	if m := s.Data().Value(); m != nil {
		text := m.String()
		resp.LastMessage = &text
	}
	return c.JSON(resp)
}

func (server *Server) handleSend(c fiber.Ctx) error {
	buffer := true
	if raw := c.Query("buffer"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return c.Status(http.StatusBadRequest).JSON(errorResponse{Error: "buffer must be a boolean"})
		}
		buffer = b
	}
	// The request body is reused by fasthttp once the handler returns.
	body := append([]byte(nil), c.Body()...)
	msg := websocket.Text(string(body))
	switch c.Query("type", "text") {
	case "text":
	case "binary":
		msg = websocket.Binary(body)
	default:
		return c.Status(http.StatusBadRequest).JSON(errorResponse{Error: "type must be text or binary"})
	}
	sent := server.session.Send(msg, buffer)
	server.log.Debug("send via api", "bytes", len(body), "buffer", buffer, "sent", sent)
	return c.JSON(SendResponse{Sent: sent})
}

func (server *Server) handleOpen(c fiber.Ctx) error {
	server.log.Info("open via api")
	server.session.Open()
	return c.SendStatus(http.StatusAccepted)
}

func (server *Server) handleClose(c fiber.Ctx) error {
	req := CloseRequest{Code: websocket.CloseNormalClosure}
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return c.Status(http.StatusBadRequest).JSON(errorResponse{Error: "invalid close request"})
		}
		if req.Code == 0 {
			req.Code = websocket.CloseNormalClosure
		}
	}
	if req.Code != websocket.CloseNormalClosure && (req.Code < 3000 || req.Code > 4999) {
		return c.Status(http.StatusBadRequest).JSON(errorResponse{Error: "code must be 1000 or in 3000-4999"})
	}
	server.log.Info("close via api", "code", req.Code, "reason", req.Reason)
	server.session.Close(req.Code, req.Reason)
	return c.SendStatus(http.StatusAccepted)
}

// StartServer blocks until ctx is done or the listener fails.
func (server *Server) StartServer(ctx context.Context, addr string) error {
	server.log.Info("server start", "addr", addr)
	return server.router.Listen(addr, fiber.ListenConfig{
		GracefulContext: ctx,
		OnShutdownSuccess: func() {
			server.log.Info("server stopped.")
		},
	})
}
