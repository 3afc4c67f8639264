package api

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"steward/internal/auth"
)

// LoginHandler exchanges actor credentials for a session token.
type LoginHandler struct {
	actors *auth.Actors
	secret string
}

func NewLoginHandler(actors *auth.Actors, secret string) *LoginHandler {
	return &LoginHandler{actors: actors, secret: secret}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /admin/login
func (h *LoginHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, InvalidPayloadError())
	}
	if req.Email == "" || req.Password == "" {
		return respondError(c, NewAppError("MISSING_CREDENTIALS", 400, "Email and password are required"))
	}

	id, err := h.actors.Authenticate(c.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return respondError(c, UnauthorizedError("Invalid email or password"))
		}
		return fmt.Errorf("login: %w", err)
	}

	token, err := auth.GenerateToken(id, h.secret)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	return c.JSON(fiber.Map{
		"token": token,
		"actor": fiber.Map{
			"id":          id.ID,
			"email":       id.Email,
			"roles":       id.Roles,
			"super_admin": id.SuperAdmin,
		},
	})
}
