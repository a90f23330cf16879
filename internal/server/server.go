package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"eeglab/internal/coordinator"
	"eeglab/internal/invite"
	"eeglab/internal/ratelimit"
	"eeglab/internal/storage"
	"eeglab/internal/store"
	"eeglab/internal/util"
	"eeglab/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	Store    store.Store
	Sessions store.SessionStore
	Gate     *invite.Gate
	Advisor  coordinator.Advisor
	Photos   coordinator.PhotoUploader
	Logger   *slog.Logger
	Now      func() time.Time

	RedisAddr                  string
	RedisPassword              string
	LoginRateLimitPerMinute    int
	RegisterRateLimitPerMinute int
	MaxUploadBytes             int64
	AllowedPhotoExtensions     []string
	TrustedProxies             []string
}

// Server exposes the HTTP API. Every signed-in client gets a Coordinator
// holding its screen state; handlers dispatch actions to it and return the
// resulting state snapshot.
type Server struct {
	store    store.Store
	sessions store.SessionStore
	gate     *invite.Gate
	advisor  coordinator.Advisor
	photos   coordinator.PhotoUploader
	logger   *slog.Logger
	now      func() time.Time
	mux      *http.ServeMux

	maxUploadBytes    int64
	allowedExtensions map[string]struct{}
	trustedProxies    *util.TrustedProxies
	loginLimiter      *ratelimit.FixedWindowLimiter
	registerLimiter   *ratelimit.FixedWindowLimiter

	regMu        sync.Mutex
	coordinators map[string]*coordinator.Coordinator
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	loginLimit := cfg.LoginRateLimitPerMinute
	if loginLimit <= 0 {
		loginLimit = 10
	}
	registerLimit := cfg.RegisterRateLimitPerMinute
	if registerLimit <= 0 {
		registerLimit = 5
	}
	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	var loginLimiter, registerLimiter *ratelimit.FixedWindowLimiter
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		loginLimiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "eeglab:ratelimit:login", loginLimit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init login limiter: %w", err)
		}
		registerLimiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "eeglab:ratelimit:register", registerLimit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init register limiter: %w", err)
		}
	}
	s := &Server{
		store:             cfg.Store,
		sessions:          cfg.Sessions,
		gate:              cfg.Gate,
		advisor:           cfg.Advisor,
		photos:            cfg.Photos,
		logger:            logger,
		now:               now,
		mux:               http.NewServeMux(),
		maxUploadBytes:    normalizeMaxBytes(cfg.MaxUploadBytes),
		allowedExtensions: normalizeExtensions(cfg.AllowedPhotoExtensions),
		trustedProxies:    trustedProxies,
		loginLimiter:      loginLimiter,
		registerLimiter:   registerLimiter,
		coordinators:      make(map[string]*coordinator.Coordinator),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/register", s.handleRegister)
	s.mux.Handle("/api/auth/logout", s.authenticated(s.handleLogout))

	s.mux.Handle("/api/state", s.authenticated(s.handleState))
	s.mux.Handle("/api/navigate", s.authenticated(s.handleNavigate))

	s.mux.Handle("/api/experiments/select", s.authenticated(s.handleSelectExperiment))
	s.mux.Handle("/api/experiments/create", s.authenticated(s.handleCreateExperiment))
	s.mux.Handle("/api/experiments/edit", s.authenticated(s.handleBeginEditExperiment))
	s.mux.Handle("/api/experiments/save", s.authenticated(s.handleSaveExperiment))
	s.mux.Handle("/api/experiments/delete", s.authenticated(s.handleDeleteExperiment))
	s.mux.Handle("/api/experiments/report", s.authenticated(s.handleReport))

	s.mux.Handle("/api/sessions/create", s.authenticated(s.handleCreateSession))
	s.mux.Handle("/api/sessions/edit", s.authenticated(s.handleBeginEditSession))
	s.mux.Handle("/api/sessions/save", s.authenticated(s.handleSaveSession))
	s.mux.Handle("/api/sessions/delete", s.authenticated(s.handleDeleteSession))

	s.mux.Handle("/api/forms/experiment", s.authenticated(s.handleExperimentForm))
	s.mux.Handle("/api/forms/session", s.authenticated(s.handleSessionForm))

	s.mux.Handle("/api/users/role", s.authenticated(s.handleChangeUserRole))
	s.mux.Handle("/api/invites/generate", s.authenticated(s.handleGenerateInvite))

	s.mux.Handle("/api/ai/protocols", s.authenticated(s.handleProtocolAdvice))
	s.mux.Handle("/api/ai/summary", s.authenticated(s.handleSummarizeSession))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// coordinatorFor returns the client's coordinator, building one from the
// persisted session if this is the first request after a restart.
func (s *Server) coordinatorFor(token string, user domain.User) *coordinator.Coordinator {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	if c, ok := s.coordinators[token]; ok {
		return c
	}
	c := s.newCoordinator()
	c.Resume(user)
	s.coordinators[token] = c
	return c
}

func (s *Server) newCoordinator() *coordinator.Coordinator {
	return coordinator.New(coordinator.Deps{
		Store:   s.store,
		Gate:    s.gate,
		Advisor: s.advisor,
		Photos:  s.photos,
		Logger:  s.logger,
		Now:     s.now,
	})
}

func (s *Server) dropCoordinator(token string) {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	delete(s.coordinators, token)
}

type authHandler func(http.ResponseWriter, *http.Request, *coordinator.Coordinator, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.audit(r, "auth.token", "fail", "reason", "missing_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		userID, ok, err := s.sessions.GetUserIDByToken(token)
		if err != nil {
			s.audit(r, "auth.token", "fail", "reason", "session_lookup_failed")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !ok {
			s.audit(r, "auth.token", "fail", "reason", "unknown_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, found, err := s.store.GetUserByID(userID)
		if err != nil {
			s.audit(r, "auth.token", "fail", "reason", "user_lookup_failed", "user_id", userID)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !found {
			// The user behind this session no longer exists; revoke it.
			_ = s.sessions.DeleteSession(token)
			s.dropCoordinator(token)
			s.audit(r, "auth.token", "fail", "reason", "unknown_user", "user_id", userID)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, s.coordinatorFor(token, user), user)
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	InviteCode string `json:"inviteCode"`
}

type sessionResponse struct {
	Token string            `json:"token"`
	State coordinator.State `json:"state"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		s.audit(r, "auth.login", "rate_limited")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	c := s.newCoordinator()
	st := c.Login(req.Email, req.Password)
	if st.CurrentUser == nil {
		s.audit(r, "auth.login", "fail", "email", req.Email)
		writeError(w, http.StatusUnauthorized, st.Notice)
		return
	}
	token, err := s.sessions.NewSession(st.CurrentUser.ID)
	if err != nil {
		s.logger.Error("create session failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not create session")
		return
	}
	s.regMu.Lock()
	s.coordinators[token] = c
	s.regMu.Unlock()
	s.audit(r, "auth.login", "success", "user_id", st.CurrentUser.ID)
	writeJSON(w, http.StatusOK, sessionResponse{Token: token, State: st})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.registerLimiter, "too many registration attempts") {
		s.audit(r, "auth.register", "rate_limited")
		return
	}
	var req registerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	c := s.newCoordinator()
	st := c.Register(req.Name, req.Email, req.Password, req.InviteCode)
	if st.CurrentUser == nil {
		s.audit(r, "auth.register", "fail", "email", req.Email)
		writeError(w, http.StatusBadRequest, st.Notice)
		return
	}
	token, err := s.sessions.NewSession(st.CurrentUser.ID)
	if err != nil {
		s.logger.Error("create session failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not create session")
		return
	}
	s.regMu.Lock()
	s.coordinators[token] = c
	s.regMu.Unlock()
	s.audit(r, "auth.register", "success", "user_id", st.CurrentUser.ID, "role", st.CurrentUser.Role)
	writeJSON(w, http.StatusCreated, sessionResponse{Token: token, State: st})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, c *coordinator.Coordinator, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	st := c.Logout()
	token, _ := bearerToken(r)
	if err := s.sessions.DeleteSession(token); err != nil {
		s.logger.Error("delete session failed", "error", err)
	}
	s.dropCoordinator(token)
	s.audit(r, "auth.logout", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request, c *coordinator.Coordinator, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request, c *coordinator.Coordinator, _ domain.User) {
	var req struct {
		View coordinator.View `json:"view"`
	}
	if !decodePost(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, c.Navigate(req.View))
}

func (s *Server) handleSelectExperiment(w http.ResponseWriter, r *http.Request, c *coordinator.Coordinator, _ domain.User) {
	var req struct {
		ID string `json:"id"`
	}
	if !decodePost(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, c.SelectExperiment(req.ID))
}

func (s *Server) handleExperimentForm(w http.ResponseWriter, r *http.Request, c *coordinator.Coordinator, _ domain.User) {
	var req coordinator.ExperimentForm
	if !decodePost(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, c.SetExperimentForm(req))
}

func (s *Server) handleSessionForm(w http.ResponseWriter, r *http.Request, c *coordinator.Coordinator, _ domain.User) {
	var req coordinator.SessionForm
	if !decodePost(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, c.SetSessionForm(req))
}

func (s *Server) handleCreateExperiment(w http.ResponseWriter, r *http.Request, c *coordinator.Coordinator, _ domain.User) {
	var req struct {
		Form *coordinator.ExperimentForm `json:"form"`
	}
	if !decodePost(w, r, &req) {
		return
	}
	if req.Form != nil {
		c.SetExperimentForm(*req.Form)
	}
	writeJSON(w, http.StatusOK, c.CreateExperiment(r.Context()))
}

func (s *Server) handleBeginEditExperiment(w http.ResponseWriter, r *http.Request, c *coordinator.Coordinator, _ domain.User) {
	var req struct {
		ID string `json:"id"`
	}
	if !decodePost(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, c.BeginEditExperiment(req.ID))
}

func (s *Server) handleSaveExperiment(w http.ResponseWriter, r *http.Request, c *coordinator.Coordinator, _ domain.User) {
	var req struct {
		Form *coordinator.ExperimentForm `json:"form"`
	}
	if !decodePost(w, r, &req) {
		return
	}
	if req.Form != nil {
		c.SetExperimentForm(*req.Form)
	}
	writeJSON(w, http.StatusOK, c.SaveExperiment(r.Context()))
}

func (s *Server) handleDeleteExperiment(w http.ResponseWriter, r *http.Request, c *coordinator.Coordinator, user domain.User) {
	var req struct {
		Confirmed bool `json:"confirmed"`
	}
	if !decodePost(w, r, &req) {
		return
	}
	s.audit(r, "experiment.delete", "requested", "user_id", user.ID, "confirmed", req.Confirmed)
	writeJSON(w, http.StatusOK, c.DeleteExperiment(r.Context(), req.Confirmed))
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request, c *coordinator.Coordinator, _ domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	uploads, cleanup, ok := s.sessionSubmission(w, r, c)
	if !ok {
		return
	}
	defer cleanup()
	writeJSON(w, http.StatusOK, c.CreateSession(r.Context(), uploads))
}

func (s *Server) handleBeginEditSession(w http.ResponseWriter, r *http.Request, c *coordinator.Coordinator, _ domain.User) {
	var req struct {
		ID string `json:"id"`
	}
	if !decodePost(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, c.BeginEditSession(req.ID))
}

func (s *Server) handleSaveSession(w http.ResponseWriter, r *http.Request, c *coordinator.Coordinator, _ domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	uploads, cleanup, ok := s.sessionSubmission(w, r, c)
	if !ok {
		return
	}
	defer cleanup()
	writeJSON(w, http.StatusOK, c.SaveSession(r.Context(), uploads))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request, c *coordinator.Coordinator, user domain.User) {
	var req struct {
		ID        string `json:"id"`
		Confirmed bool   `json:"confirmed"`
	}
	if !decodePost(w, r, &req) {
		return
	}
	s.audit(r, "session.delete", "requested", "user_id", user.ID, "confirmed", req.Confirmed)
	writeJSON(w, http.StatusOK, c.DeleteSession(r.Context(), req.ID, req.Confirmed))
}

func (s *Server) handleChangeUserRole(w http.ResponseWriter, r *http.Request, c *coordinator.Coordinator, user domain.User) {
	var req struct {
		UserID    string      `json:"userId"`
		Role      domain.Role `json:"role"`
		Confirmed bool        `json:"confirmed"`
	}
	if !decodePost(w, r, &req) {
		return
	}
	if user.Role != domain.RoleAdmin {
		s.audit(r, "user.role_change", "fail", "user_id", user.ID, "reason", "forbidden")
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	s.audit(r, "user.role_change", "requested", "user_id", user.ID, "target", req.UserID, "role", req.Role)
	writeJSON(w, http.StatusOK, c.ChangeUserRole(r.Context(), req.UserID, req.Role, req.Confirmed))
}

func (s *Server) handleGenerateInvite(w http.ResponseWriter, r *http.Request, c *coordinator.Coordinator, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if user.Role != domain.RoleAdmin {
		s.audit(r, "invite.generate", "fail", "user_id", user.ID, "reason", "forbidden")
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	s.audit(r, "invite.generate", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, c.GenerateInvite(r.Context()))
}

func (s *Server) handleProtocolAdvice(w http.ResponseWriter, r *http.Request, c *coordinator.Coordinator, _ domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, c.RequestProtocolAdvice(r.Context()))
}

func (s *Server) handleSummarizeSession(w http.ResponseWriter, r *http.Request, c *coordinator.Coordinator, _ domain.User) {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if !decodePost(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, c.SummarizeSession(r.Context(), req.SessionID))
}

// sessionSubmission reads a session create/save request. Multipart bodies
// may carry a "form" JSON field plus photo files under "photos"; plain
// JSON bodies may carry {"form": ...} with no photos.
func (s *Server) sessionSubmission(w http.ResponseWriter, r *http.Request, c *coordinator.Coordinator) ([]storage.PhotoUpload, func(), bool) {
	noop := func() {}
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if contentType != "multipart/form-data" {
		var req struct {
			Form *coordinator.SessionForm `json:"form"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && err != io.EOF {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return nil, noop, false
		}
		if req.Form != nil {
			c.SetSessionForm(*req.Form)
		}
		return nil, noop, true
	}

	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return nil, noop, false
	}
	if raw := r.FormValue("form"); raw != "" {
		var form coordinator.SessionForm
		if err := json.Unmarshal([]byte(raw), &form); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form field")
			return nil, noop, false
		}
		c.SetSessionForm(form)
	}

	headers := r.MultipartForm.File["photos"]
	uploads := make([]storage.PhotoUpload, 0, len(headers))
	files := make([]multipart.File, 0, len(headers))
	cleanup := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}
	for _, header := range headers {
		if !s.isExtensionAllowed(header.Filename) {
			cleanup()
			writeError(w, http.StatusBadRequest, "unsupported photo type")
			return nil, noop, false
		}
		file, err := header.Open()
		if err != nil {
			cleanup()
			writeError(w, http.StatusBadRequest, "could not read photo")
			return nil, noop, false
		}
		files = append(files, file)
		uploads = append(uploads, storage.PhotoUpload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Reader:      file,
		})
	}
	return uploads, cleanup, true
}

// decodePost enforces POST and decodes a JSON body; empty bodies are fine.
func decodePost(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return false
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 20 * 1024 * 1024
	}
	return value
}

func normalizeExtensions(exts []string) map[string]struct{} {
	if len(exts) == 0 {
		exts = []string{".jpg", ".jpeg", ".png", ".webp", ".gif"}
	}
	out := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out[ext] = struct{}{}
	}
	return out
}

func (s *Server) isExtensionAllowed(filename string) bool {
	if len(s.allowedExtensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(filename))
	_, ok := s.allowedExtensions[ext]
	return ok
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", s.clientIP(r),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "fail" || outcome == "rate_limited" {
		s.logger.Warn("security_event", logAttrs...)
		return
	}
	s.logger.Info("security_event", logAttrs...)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + s.clientIP(r)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

// clientIP resolves the caller address for audit logs and rate-limit keys.
// Forwarded headers count only when the peer is a configured trusted proxy.
func (s *Server) clientIP(r *http.Request) string {
	return util.ClientIP(r, s.trustedProxies)
}
