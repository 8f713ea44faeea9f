package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v3"
)

func (server *Server) BearerTokenMiddleware(c fiber.Ctx) error {
	if server.token == "" {
		return c.Next()
	}
	header := c.Get(fiber.HeaderAuthorization)
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return c.Status(http.StatusUnauthorized).JSON(errorResponse{Error: "missing bearer token"})
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(server.token)) != 1 {
		server.log.Warn("rejected control request", "path", c.Path())
		return c.Status(http.StatusUnauthorized).JSON(errorResponse{Error: "invalid bearer token"})
	}
	return c.Next()
}
