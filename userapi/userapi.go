// Package userapi exposes the user service's HTTP surface: registration,
// login/logout, profile management, and health probes.
package userapi

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/storefront-kit/storefront/auth"
	"github.com/storefront-kit/storefront/httpx"
)

const contextKeyUser = "userapi.user"
const contextKeyToken = "userapi.token"

// Health reports the state of the service's dependencies.
type Health struct {
	Database func(ctx context.Context) bool
	Cache    func(ctx context.Context) bool
	Queue    func() bool
}

// API wires the auth service into HTTP handlers.
type API struct {
	service *auth.Service
	health  Health
	logger  *slog.Logger
}

// New builds the API. Nil health probes read as unavailable.
func New(service *auth.Service, health Health, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{service: service, health: health, logger: logger}
}

// Routes registers every endpoint on the given Echo instance.
func (a *API) Routes(e *httpx.Echo) {
	e.GET("/", a.describe)
	e.GET("/healthz", a.healthz)
	e.GET("/ready", a.ready)

	httpx.NewRouter(e, "/api/users").
		POST("/register", a.register).
		POST("/login", a.login)

	httpx.NewRouter(e, "/api/users", a.requireAuth).
		POST("/logout", a.logout).
		GET("/profile", a.profile).
		PUT("/profile", a.updateProfile).
		PUT("/password", a.changePassword).
		GET("/", a.listUsers).
		GET("/:id", a.getUser)
}

// requireAuth authenticates the bearer token and stashes the user and token
// in the request context.
func (a *API) requireAuth(next httpx.HandlerFunc) httpx.HandlerFunc {
	return func(c httpx.Context) error {
		raw := httpx.BearerToken(c)
		if raw == "" {
			return httpx.HTTPError(httpx.StatusUnauthorized, "missing bearer token")
		}
		user, token, err := a.service.Authenticate(c.Request().Context(), raw)
		if err != nil {
			if errors.Is(err, auth.ErrTokenInvalid) || errors.Is(err, auth.ErrTokenExpired) {
				return httpx.HTTPError(httpx.StatusUnauthorized, "invalid or expired token")
			}
			return err
		}
		c.Set(contextKeyUser, user)
		c.Set(contextKeyToken, token)
		return next(c)
	}
}

func currentUser(c httpx.Context) auth.User {
	user, _ := c.Get(contextKeyUser).(auth.User)
	return user
}

func currentToken(c httpx.Context) auth.Token {
	token, _ := c.Get(contextKeyToken).(auth.Token)
	return token
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toUserResponse(user auth.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Phone:     user.Phone,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

func (a *API) register(c httpx.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return httpx.HTTPError(httpx.StatusBadRequest, "invalid request body")
	}

	user, err := a.service.Register(c.Request().Context(), auth.Registration{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserEmailInUse):
			return httpx.HTTPError(httpx.StatusConflict, "email already registered")
		case errors.Is(err, auth.ErrUserInvalidInput),
			errors.Is(err, auth.ErrPasswordTooShort),
			errors.Is(err, auth.ErrPasswordTooLong):
			return httpx.HTTPError(httpx.StatusBadRequest, err.Error())
		}
		return err
	}
	return c.JSON(httpx.StatusCreated, toUserResponse(user))
}

func (a *API) login(c httpx.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return httpx.HTTPError(httpx.StatusBadRequest, "invalid request body")
	}

	user, token, err := a.service.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return httpx.HTTPError(httpx.StatusUnauthorized, "invalid credentials")
		}
		return err
	}
	return c.JSON(httpx.StatusOK, map[string]any{
		"token":      token.Raw,
		"expires_at": token.ExpiresAt,
		"user":       toUserResponse(user),
	})
}

func (a *API) logout(c httpx.Context) error {
	if err := a.service.Logout(c.Request().Context(), currentToken(c)); err != nil {
		if errors.Is(err, auth.ErrRevocationUnavailable) {
			return httpx.HTTPError(httpx.StatusServiceUnavailable, "logout unavailable, try again")
		}
		return err
	}
	return c.JSON(httpx.StatusOK, map[string]string{"message": "logged out"})
}

func (a *API) profile(c httpx.Context) error {
	return c.JSON(httpx.StatusOK, toUserResponse(currentUser(c)))
}

type profileUpdateRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
}

func (a *API) updateProfile(c httpx.Context) error {
	var req profileUpdateRequest
	if err := c.Bind(&req); err != nil {
		return httpx.HTTPError(httpx.StatusBadRequest, "invalid request body")
	}

	user, err := a.service.UpdateProfile(c.Request().Context(), currentUser(c).ID, auth.UserPatch{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		if errors.Is(err, auth.ErrUserInvalidInput) {
			return httpx.HTTPError(httpx.StatusBadRequest, err.Error())
		}
		return err
	}
	return c.JSON(httpx.StatusOK, toUserResponse(user))
}

type passwordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (a *API) changePassword(c httpx.Context) error {
	var req passwordChangeRequest
	if err := c.Bind(&req); err != nil {
		return httpx.HTTPError(httpx.StatusBadRequest, "invalid request body")
	}

	err := a.service.ChangePassword(c.Request().Context(), currentUser(c).ID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			return httpx.HTTPError(httpx.StatusUnauthorized, "current password does not match")
		case errors.Is(err, auth.ErrPasswordTooShort), errors.Is(err, auth.ErrPasswordTooLong):
			return httpx.HTTPError(httpx.StatusBadRequest, err.Error())
		}
		return err
	}
	return c.JSON(httpx.StatusOK, map[string]string{"message": "password updated"})
}

func (a *API) listUsers(c httpx.Context) error {
	limit, offset := pageParams(c)
	users, err := a.service.ListUsers(c.Request().Context(), limit, offset)
	if err != nil {
		return err
	}
	out := make([]userResponse, 0, len(users))
	for _, user := range users {
		out = append(out, toUserResponse(user))
	}
	return c.JSON(httpx.StatusOK, out)
}

func (a *API) getUser(c httpx.Context) error {
	user, err := a.service.GetUser(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return httpx.HTTPError(httpx.StatusNotFound, "user not found")
		}
		return err
	}
	return c.JSON(httpx.StatusOK, toUserResponse(user))
}

func (a *API) describe(c httpx.Context) error {
	return c.JSON(httpx.StatusOK, map[string]string{
		"service": "user-service",
		"status":  "running",
	})
}

func (a *API) healthz(c httpx.Context) error {
	return c.JSON(httpx.StatusOK, map[string]string{"status": "ok"})
}

// ready reports dependency health. The service is ready as long as the
// database answers; cache and queue are informational.
func (a *API) ready(c httpx.Context) error {
	ctx := c.Request().Context()
	deps := map[string]bool{
		"database": probe(ctx, a.health.Database),
		"cache":    probe(ctx, a.health.Cache),
		"queue":    a.health.Queue != nil && a.health.Queue(),
	}
	status := httpx.StatusOK
	if !deps["database"] {
		status = httpx.StatusServiceUnavailable
	}
	return c.JSON(status, map[string]any{"ready": deps["database"], "dependencies": deps})
}

func probe(ctx context.Context, fn func(context.Context) bool) bool {
	if fn == nil {
		return false
	}
	return fn(ctx)
}

func pageParams(c httpx.Context) (int, int) {
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	return limit, offset
}

func intQuery(c httpx.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
