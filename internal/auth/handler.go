package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Handler exposes the login endpoints.
type Handler struct {
	resolver *Resolver
	logger   *zap.SugaredLogger
}

func NewHandler(resolver *Resolver, logger *zap.SugaredLogger) *Handler {
	return &Handler{resolver: resolver, logger: logger}
}

// LoginRequest is the union of the three login payloads.
type LoginRequest struct {
	Role          string `json:"role"`
	Email         string `json:"email"`
	Username      string `json:"username"`
	Phone         numericString `json:"phone"`
	AadhaarNumber numericString `json:"aadhaarNumber"`
	Password      string        `json:"password"`
}

// numericString accepts a JSON string or number. Mobile clients send phone
// and Aadhaar numbers unquoted.
type numericString string

func (s *numericString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = numericString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = numericString(n.String())
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// UserView is the account as returned to the client.
type UserView struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Email            string `json:"email,omitempty"`
	Phone            string `json:"phone,omitempty"`
	Role             string `json:"role"`
	RoleType         string `json:"roleType,omitempty"`
	Status           string `json:"status,omitempty"`
	DepotID          string `json:"depotId,omitempty"`
	DepotCode        string `json:"depotCode,omitempty"`
	DepotName        string `json:"depotName,omitempty"`
	ProfileCompleted *bool  `json:"profileCompleted,omitempty"`
}

type loginResponse struct {
	Success      bool     `json:"success"`
	Message      string   `json:"message"`
	Token        string   `json:"token"`
	User         UserView `json:"user"`
	RedirectPath string   `json:"redirectPath"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func userView(res *Result, unified bool) UserView {
	acc := res.Account
	u := UserView{
		ID:        acc.ID,
		Name:      acc.Name,
		Email:     acc.Email,
		Phone:     acc.Phone,
		Role:      string(res.Role),
		Status:    string(acc.Status),
		DepotID:   acc.DepotID,
		DepotCode: acc.DepotCode,
		DepotName: acc.DepotName,
	}
	if unified {
		u.RoleType = string(res.Role.Type())
		pc := acc.ProfileCompleted
		u.ProfileCompleted = &pc
	}
	return u
}

// Login handles POST /api/auth/login with email, username or phone.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid login payload", "err", err)
		h.writeError(w, ErrMissingCredentials)
		return
	}
	res, err := h.resolver.Resolve(r.Context(), firstNonEmpty(req.Email, req.Username, string(req.Phone)), req.Password)
	h.respond(w, res, err, false)
}

// UnifiedLogin handles POST /api/auth/unified-login with email, phone or Aadhaar.
func (h *Handler) UnifiedLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid unified login payload", "err", err)
		h.writeError(w, ErrMissingCredentials)
		return
	}
	res, err := h.resolver.Resolve(r.Context(), firstNonEmpty(req.Email, string(req.Phone), string(req.AadhaarNumber)), req.Password)
	h.respond(w, res, err, true)
}

// RoleLogin handles POST /api/auth/role-login where the caller names the role.
func (h *Handler) RoleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid role login payload", "err", err)
		h.writeError(w, ErrMissingCredentials)
		return
	}
	res, err := h.resolver.ResolveRole(r.Context(), req.Role, firstNonEmpty(req.Username, req.Email, string(req.Phone)), req.Password)
	h.respond(w, res, err, false)
}

func (h *Handler) respond(w http.ResponseWriter, res *Result, err error, unified bool) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, loginResponse{
		Success:      true,
		Message:      "Login successful",
		Token:        res.Session.Token,
		User:         userView(res, unified),
		RedirectPath: res.Session.RedirectPath,
	})
}

// Me handles GET /api/auth/me and echoes the claims of a valid bearer token.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	tok, err := bearerToken(r.Header.Get("Authorization"))
	if err != nil {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "Authentication required"})
		return
	}
	claims, err := h.resolver.Minter().Parse(tok)
	if err != nil {
		h.logger.Debugw("invalid session token", "err", err)
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "Invalid or expired token"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": meView(claims)})
}

func meView(c jwt.MapClaims) map[string]any {
	out := map[string]any{}
	for _, k := range []string{"userId", "name", "email", "roleType", "depotId", "depotCode", "depotName", "vendorId", "studentId", "driverId", "conductorId"} {
		if v, ok := c[k]; ok {
			out[k] = v
		}
	}
	out["id"] = c["sub"]
	if role, ok := c["role"].(string); ok {
		out["role"] = strings.ToLower(role)
	}
	return out
}

// Health handles GET /api/auth/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

const (
	msgMissing   = "Identifier and password are required"
	msgBadRole   = "Invalid role"
	msgInvalid   = "Invalid credentials"
	msgSuspended = "Account is suspended. Please contact administrator."
	msgLocked    = "Account is temporarily locked. Please try again later."
	msgFailed    = "Login failed"
)

// StatusFor maps a resolver error to its HTTP status and client message.
func StatusFor(err error) (int, string) {
	var notActive *AccountNotActiveError
	switch {
	case errors.Is(err, ErrMissingCredentials):
		return http.StatusBadRequest, msgMissing
	case errors.Is(err, ErrUnknownRole):
		return http.StatusBadRequest, msgBadRole
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized, msgInvalid
	case errors.Is(err, ErrAccountSuspended):
		return http.StatusForbidden, msgSuspended
	case errors.As(err, &notActive):
		return http.StatusForbidden, "Account is " + string(notActive.Status) + ". Please contact administrator."
	case errors.Is(err, ErrAccountNotActive):
		return http.StatusForbidden, "Account is not active. Please contact administrator."
	case errors.Is(err, ErrAccountLocked):
		return http.StatusLocked, msgLocked
	default:
		return http.StatusInternalServerError, msgFailed
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, msg := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Errorw("login failed", "err", err)
	}
	h.writeJSON(w, status, errorResponse{Message: msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
