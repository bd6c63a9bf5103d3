// Package handler exposes the service layer over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/devtoolkit/auth-service/internal/config"
	"github.com/devtoolkit/auth-service/internal/middleware"
	"github.com/devtoolkit/auth-service/internal/repository"
	"github.com/devtoolkit/auth-service/internal/service"
	"github.com/devtoolkit/auth-service/pkg/token"
)

type Handler struct {
	auth        *service.AuthService
	usage       *service.UsageService
	admin       *service.AdminService
	suggestions *service.SuggestionService
	generate    *service.GenerateService
	activity    *service.ActivityLogger
	codec       *token.Codec
	cfg         *config.Config
	log         zerolog.Logger
}

func New(
	auth *service.AuthService,
	usage *service.UsageService,
	admin *service.AdminService,
	suggestions *service.SuggestionService,
	generate *service.GenerateService,
	activity *service.ActivityLogger,
	codec *token.Codec,
	cfg *config.Config,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		auth:        auth,
		usage:       usage,
		admin:       admin,
		suggestions: suggestions,
		generate:    generate,
		activity:    activity,
		codec:       codec,
		cfg:         cfg,
		log:         log,
	}
}

// Router builds the full route tree with middleware applied per tier.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(h.log), middleware.CORS)

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	auth.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	auth.HandleFunc("/verify-email", h.VerifyEmail).Methods(http.MethodPost)
	auth.HandleFunc("/resend-verification", h.ResendVerification).Methods(http.MethodPost)
	auth.HandleFunc("/request-password-reset", h.RequestPasswordReset).Methods(http.MethodPost)
	auth.HandleFunc("/reset-password", h.ResetPassword).Methods(http.MethodPost)

	private := api.NewRoute().Subrouter()
	private.Use(middleware.Authenticate(h.codec, h.cfg.Auth.CookieName))
	private.HandleFunc("/auth/me", h.Me).Methods(http.MethodGet)
	private.HandleFunc("/auth/profile", h.UpdateProfile).Methods(http.MethodPatch)
	private.HandleFunc("/auth/logout", h.Logout).Methods(http.MethodPost)
	private.HandleFunc("/auth/sessions", h.ListSessions).Methods(http.MethodGet)
	private.HandleFunc("/usage", h.Usage).Methods(http.MethodGet)
	private.HandleFunc("/tools/generate", h.Generate).Methods(http.MethodPost)
	private.HandleFunc("/suggestions", h.SubmitSuggestion).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.Authenticate(h.codec, h.cfg.Auth.CookieName), middleware.RequireAdmin)
	admin.HandleFunc("/users", h.ListUsers).Methods(http.MethodGet)
	admin.HandleFunc("/users/{id}/suspend", h.SuspendUser).Methods(http.MethodPost)
	admin.HandleFunc("/users/{id}/reinstate", h.ReinstateUser).Methods(http.MethodPost)
	admin.HandleFunc("/users/{id}/quota", h.SetQuota).Methods(http.MethodPost)
	admin.HandleFunc("/users/{id}/role", h.SetRole).Methods(http.MethodPost)
	admin.HandleFunc("/users/{id}/activity", h.UserActivity).Methods(http.MethodGet)
	admin.HandleFunc("/suggestions", h.ListSuggestions).Methods(http.MethodGet)
	admin.HandleFunc("/suggestions/{id}/status", h.SuggestionStatus).Methods(http.MethodPost)
	admin.HandleFunc("/suggestions/{id}/respond", h.SuggestionRespond).Methods(http.MethodPost)

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if !decode(w, r, &body) {
		return
	}

	user, err := h.auth.Register(r.Context(), &service.RegisterRequest{
		Email:     body.Email,
		Password:  body.Password,
		FirstName: body.FirstName,
		LastName:  body.LastName,
		Device:    deviceFromRequest(r),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Registration successful. Please check your email to verify your account.",
		"user":    userView(user),
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &body) {
		return
	}

	res, err := h.auth.Login(r.Context(), &service.LoginRequest{
		Email:    body.Email,
		Password: body.Password,
		Device:   deviceFromRequest(r),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.Auth.CookieName,
		Value:    res.Token,
		Path:     "/",
		MaxAge:   int(h.cfg.Auth.TokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})

	resp := map[string]any{
		"token": res.Token,
		"user":  userView(res.User),
	}
	if res.Session != nil {
		resp["session_id"] = res.Session.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if !decode(w, r, &body) {
		return
	}

	user, err := h.auth.VerifyEmail(r.Context(), body.Token)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Email verified successfully",
		"user":    userView(user),
	})
}

func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &body) {
		return
	}

	if err := h.auth.ResendVerification(r.Context(), body.Email); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "If an unverified account exists for that email, a new verification link has been sent.",
	})
}

func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &body) {
		return
	}

	if err := h.auth.RequestPasswordReset(r.Context(), body.Email); err != nil {
		h.writeError(w, err)
		return
	}

	// Identical response whether or not the account exists.
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "If an account exists for that email, a reset link has been sent.",
	})
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !decode(w, r, &body) {
		return
	}

	if err := h.auth.ResetPassword(r.Context(), body.Token, body.Password); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Password reset successfully"})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	user, err := h.auth.GetUserByID(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userView(user))
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	var body struct {
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
	}
	if !decode(w, r, &body) {
		return
	}

	user, err := h.auth.UpdateProfile(r.Context(), userID, repository.ProfilePatch{
		FirstName: body.FirstName,
		LastName:  body.LastName,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userView(user))
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionID string `json:"session_id"`
	}
	// Body is optional; browser clients may only carry the cookie.
	_ = json.NewDecoder(r.Body).Decode(&body)

	if body.SessionID != "" {
		if err := h.auth.Logout(r.Context(), body.SessionID); err != nil {
			h.writeError(w, err)
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.Auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	sessions, err := h.auth.ListSessions(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	decision, err := h.usage.CanUseAI(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	var body struct {
		Tool   string `json:"tool"`
		Prompt string `json:"prompt"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.Prompt == "" {
		writeError(w, http.StatusBadRequest, "Prompt is required")
		return
	}

	output, err := h.generate.Generate(r.Context(), userID, body.Tool, body.Prompt)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"tool": body.Tool, "output": output})
}

func (h *Handler) SubmitSuggestion(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	var body struct {
		Title   string `json:"title"`
		Message string `json:"message"`
	}
	if !decode(w, r, &body) {
		return
	}

	suggestion, err := h.suggestions.Submit(r.Context(), userID, body.Title, body.Message)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, suggestion)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	users, total, err := h.admin.ListUsers(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}

	views := make([]map[string]any, 0, len(users))
	for _, u := range users {
		views = append(views, userView(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": views, "total": total})
}

func (h *Handler) SuspendUser(w http.ResponseWriter, r *http.Request) {
	adminID, _ := middleware.UserID(r.Context())
	targetID := mux.Vars(r)["id"]

	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	if err := h.admin.Suspend(r.Context(), adminID, targetID, body.Reason); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "User suspended"})
}

func (h *Handler) ReinstateUser(w http.ResponseWriter, r *http.Request) {
	adminID, _ := middleware.UserID(r.Context())
	targetID := mux.Vars(r)["id"]

	if err := h.admin.Reinstate(r.Context(), adminID, targetID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "User reinstated"})
}

func (h *Handler) SetQuota(w http.ResponseWriter, r *http.Request) {
	adminID, _ := middleware.UserID(r.Context())
	targetID := mux.Vars(r)["id"]

	var body struct {
		DailyLimit   int `json:"daily_limit"`
		MonthlyLimit int `json:"monthly_limit"`
	}
	if !decode(w, r, &body) {
		return
	}

	if err := h.admin.SetQuota(r.Context(), adminID, targetID, body.DailyLimit, body.MonthlyLimit); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Quota updated"})
}

func (h *Handler) SetRole(w http.ResponseWriter, r *http.Request) {
	adminID, _ := middleware.UserID(r.Context())
	targetID := mux.Vars(r)["id"]

	var body struct {
		Role string `json:"role"`
	}
	if !decode(w, r, &body) {
		return
	}

	if err := h.admin.SetRole(r.Context(), adminID, targetID, repository.Role(body.Role)); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Role updated"})
}

func (h *Handler) UserActivity(w http.ResponseWriter, r *http.Request) {
	targetID := mux.Vars(r)["id"]
	limit := queryInt(r, "limit", 100)

	entries, err := h.activity.ListByUser(r.Context(), targetID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": entries})
}

func (h *Handler) ListSuggestions(w http.ResponseWriter, r *http.Request) {
	var status *repository.SuggestionStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st := repository.SuggestionStatus(s)
		status = &st
	}

	suggestions, err := h.suggestions.List(r.Context(), status, queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

func (h *Handler) SuggestionStatus(w http.ResponseWriter, r *http.Request) {
	adminID, _ := middleware.UserID(r.Context())
	id := mux.Vars(r)["id"]

	var body struct {
		Status string `json:"status"`
	}
	if !decode(w, r, &body) {
		return
	}

	suggestion, err := h.suggestions.UpdateStatus(r.Context(), adminID, id, repository.SuggestionStatus(body.Status))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}

func (h *Handler) SuggestionRespond(w http.ResponseWriter, r *http.Request) {
	adminID, _ := middleware.UserID(r.Context())
	id := mux.Vars(r)["id"]

	var body struct {
		Response string `json:"response"`
	}
	if !decode(w, r, &body) {
		return
	}

	suggestion, err := h.suggestions.Respond(r.Context(), adminID, id, body.Response)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}

// writeError maps service errors to HTTP statuses and user-facing messages.
// Anything unmapped is a 500 with a generic body; the detail goes to the log.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var qerr *service.QuotaError
	if errors.As(err, &qerr) {
		writeError(w, http.StatusTooManyRequests, qerr.Reason)
		return
	}

	switch {
	case errors.Is(err, service.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, "Invalid email address")
	case errors.Is(err, service.ErrPasswordTooShort):
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
	case errors.Is(err, service.ErrEmailTaken):
		writeError(w, http.StatusBadRequest, "Email already registered")
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, service.ErrAccountSuspended):
		writeError(w, http.StatusForbidden, "Account is suspended")
	case errors.Is(err, service.ErrAccountLocked):
		writeError(w, http.StatusForbidden, "Account is temporarily locked. Please try again later.")
	case errors.Is(err, service.ErrEmailNotVerified):
		writeError(w, http.StatusForbidden, "Please verify your email before logging in")
	case errors.Is(err, service.ErrInvalidToken):
		writeError(w, http.StatusBadRequest, "Invalid or expired token")
	case errors.Is(err, service.ErrUnknownTool):
		writeError(w, http.StatusBadRequest, "Unknown tool")
	case errors.Is(err, service.ErrInvalidTransition):
		writeError(w, http.StatusBadRequest, "Invalid status transition")
	case errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, service.ErrSuggestionNotFound):
		writeError(w, http.StatusNotFound, "Suggestion not found")
	default:
		h.log.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// userView is the serializable subset of a user record. Hashes and live
// tokens never leave the server.
func userView(u *repository.User) map[string]any {
	return map[string]any{
		"id":            u.ID,
		"email":         u.Email,
		"first_name":    u.FirstName,
		"last_name":     u.LastName,
		"role":          u.Role,
		"is_verified":   u.IsVerified,
		"is_active":     u.IsActive,
		"is_suspended":  u.IsSuspended,
		"daily_count":   u.DailyCount,
		"daily_limit":   u.DailyLimit,
		"monthly_count": u.MonthlyCount,
		"monthly_limit": u.MonthlyLimit,
		"total_count":   u.TotalCount,
		"last_login":    u.LastLogin,
		"created_at":    u.CreatedAt,
	}
}

func deviceFromRequest(r *http.Request) *service.DeviceInfo {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	// X-Forwarded-For wins behind the reverse proxy.
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip = fwd
	}
	return &service.DeviceInfo{IPAddress: ip, UserAgent: r.UserAgent()}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
