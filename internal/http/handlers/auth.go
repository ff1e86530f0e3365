package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hongminglow/passgate/internal/account"
	"github.com/hongminglow/passgate/internal/http/respond"
	"github.com/hongminglow/passgate/internal/models/dto"
)

const maxBodyBytes = 1 << 20

// AuthHandler exposes the account flows over HTTP.
type AuthHandler struct {
	svc    *account.Service
	logger *slog.Logger
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(svc *account.Service, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{svc: svc, logger: logger}
}

// Register attaches the auth routes under mountPath (e.g. /api/users).
func (h *AuthHandler) Register(mux *http.ServeMux, mountPath string) {
	base := MountPath(mountPath)
	mux.HandleFunc("POST "+base+"/register", h.handleRegister)
	mux.HandleFunc("POST "+base+"/login", h.handleLogin)
	mux.HandleFunc("POST "+base+"/forgot-password", h.handleForgotPassword)
	mux.HandleFunc("POST "+base+"/reset-password/{resetToken}", h.handleResetPassword)
}

// MountPath normalizes a route prefix to a leading slash and no trailing slash.
// The root prefix becomes "".
func MountPath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	h.decode(w, r, &req)

	if err := h.svc.Register(r.Context(), req.Username, req.Email, req.Password); err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, dto.MessageResponse{Message: "User registered successfully"})
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	h.decode(w, r, &req)

	token, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, dto.LoginResponse{Message: "Login successful", Token: token})
}

func (h *AuthHandler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ForgotPasswordRequest
	h.decode(w, r, &req)

	if err := h.svc.ForgotPassword(r.Context(), req.Email); err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, dto.MessageResponse{Message: "Password reset link sent to email"})
}

func (h *AuthHandler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ResetPasswordRequest
	h.decode(w, r, &req)

	if err := h.svc.ResetPassword(r.Context(), r.PathValue("resetToken"), req.NewPassword); err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, dto.MessageResponse{Message: "Password has been successfully reset"})
}

// decode fills dst from the JSON body. Decode errors are ignored so that a
// missing or malformed body surfaces as missing fields.
func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, dst any) {
	if r.Body == nil {
		return
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		h.logger.DebugContext(r.Context(), "ignoring undecodable request body", "path", r.URL.Path, "error", err)
	}
}

func (h *AuthHandler) fail(w http.ResponseWriter, err error) {
	var accErr *account.Error
	if !errors.As(err, &accErr) {
		respond.Internal(w, "Internal server error", err.Error())
		return
	}
	if accErr.Kind == account.KindInternal {
		respond.Internal(w, accErr.Message, accErr.Details())
		return
	}
	respond.Error(w, http.StatusBadRequest, accErr.Message)
}
