package http

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
	"github.com/custodia-labs/sercha-social/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-social/internal/telemetry"
)

// Callback redirect status values.
const (
	callbackSuccess = "success"
	callbackError   = "error"
	callbackDenied  = "denied"
)

// defaultActivityMax is used when the max query parameter is absent.
const defaultActivityMax = 10

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Tags         Health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Pings the database and Redis when configured
// @Tags         Health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	for name, p := range s.pingers {
		if p == nil {
			continue
		}
		if err := p.Ping(r.Context()); err != nil {
			telemetry.LoggerWithCorr(r.Context(), s.logger).Warn("readiness check failed", "component", name, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "component": name})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleVersion godoc
// @Summary      Get API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// OAuth endpoints

// handleAuthorize godoc
// @Summary      Start an authorization flow
// @Tags         OAuth
// @Produce      json
// @Param        platform  path      string  true  "youtube, tiktok, instagram or x"
// @Success      200       {object}  domain.AuthorizationURL
// @Failure      400       {object}  map[string]string
// @Failure      503       {object}  map[string]string  "Platform not configured"
// @Router       /platforms/{platform}/authorize [post]
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	platform, ok := pathPlatform(w, r)
	if !ok {
		return
	}
	authCtx := GetAuthContext(r.Context())

	auth, err := s.oauthService.GenerateAuthorizationURL(r.Context(), platform, authCtx.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, auth)
}

// handleCallback godoc
// @Summary      Complete an authorization flow
// @Description  Public redirect target of the platform. Always redirects to the frontend.
// @Tags         OAuth
// @Param        platform           path   string  true   "Platform"
// @Param        code               query  string  false  "Authorization code"
// @Param        state              query  string  false  "State"
// @Param        error              query  string  false  "Platform error"
// @Param        error_description  query  string  false  "Platform error description"
// @Success      302
// @Router       /platforms/{platform}/callback [get]
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("platform")
	platform, err := domain.ParsePlatform(raw)
	if err != nil {
		s.redirectToFrontend(w, r, raw, callbackError, "Unsupported platform")
		return
	}

	q := r.URL.Query()
	resp, err := s.oauthService.Callback(r.Context(), driving.CallbackRequest{
		Platform:         platform,
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
		IPAddress:        s.clientIP(r),
	})
	if err != nil {
		status := callbackError
		if errors.Is(err, domain.ErrAccessDenied) {
			status = callbackDenied
		}
		s.redirectToFrontend(w, r, string(platform), status, callbackMessage(err))
		return
	}

	s.redirectToFrontend(w, r, string(platform), callbackSuccess, resp.Message)
}

// Connection endpoints

// handleListConnections godoc
// @Summary      List active connections
// @Tags         Connections
// @Produce      json
// @Success      200  {array}  domain.ConnectionSummary
// @Router       /connections [get]
func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	authCtx := GetAuthContext(r.Context())

	list, err := s.oauthService.ListConnections(r.Context(), authCtx.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleGetConnection godoc
// @Summary      Get a platform connection
// @Tags         Connections
// @Produce      json
// @Param        platform  path      string  true  "Platform"
// @Success      200       {object}  domain.ConnectionSummary
// @Failure      404       {object}  map[string]string
// @Router       /platforms/{platform}/connection [get]
func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	platform, ok := pathPlatform(w, r)
	if !ok {
		return
	}
	authCtx := GetAuthContext(r.Context())

	conn, err := s.oauthService.GetConnection(r.Context(), authCtx.UserID, platform)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if conn == nil {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}
	writeJSON(w, http.StatusOK, conn.ToSummary(s.now()))
}

// handleDisconnect godoc
// @Summary      Disconnect a platform
// @Tags         Connections
// @Produce      json
// @Param        platform  path      string  true  "Platform"
// @Success      200       {object}  driving.DisconnectResponse
// @Failure      404       {object}  map[string]string
// @Router       /platforms/{platform}/connection [delete]
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	platform, ok := pathPlatform(w, r)
	if !ok {
		return
	}
	authCtx := GetAuthContext(r.Context())

	resp, err := s.oauthService.Disconnect(r.Context(), authCtx.UserID, platform)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Platform data endpoints

// handleXActivity godoc
// @Summary      Recent X posts and mentions
// @Tags         Activity
// @Produce      json
// @Param        max  query     int  false  "Posts per list (5-100)"
// @Success      200  {object}  domain.Activity
// @Failure      429  {object}  map[string]string  "Rate limited"
// @Router       /platforms/x/activity [get]
func (s *Server) handleXActivity(w http.ResponseWriter, r *http.Request) {
	authCtx := GetAuthContext(r.Context())

	max := defaultActivityMax
	if v := r.URL.Query().Get("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "max must be a positive integer")
			return
		}
		max = n
	}

	activity, err := s.activityService.GetActivity(r.Context(), authCtx.UserID, domain.PlatformX, max)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, activity)
}

// Helpers

func pathPlatform(w http.ResponseWriter, r *http.Request) (domain.Platform, bool) {
	platform, err := domain.ParsePlatform(r.PathValue("platform"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unsupported platform")
		return "", false
	}
	return platform, true
}

// redirectToFrontend sends the browser back to the frontend with the outcome.
func (s *Server) redirectToFrontend(w http.ResponseWriter, r *http.Request, platform, status, message string) {
	params := url.Values{}
	params.Set("platform", platform)
	params.Set("status", status)
	params.Set("message", message)

	sep := "?"
	if strings.Contains(s.frontendURL, "?") {
		sep = "&"
	}
	http.Redirect(w, r, s.frontendURL+sep+params.Encode(), http.StatusFound)
}

// callbackMessage is the short user-facing text for a failed callback.
func callbackMessage(err error) string {
	var oe *driving.OAuthError
	if errors.As(err, &oe) && oe.Description != "" {
		if errors.Is(err, domain.ErrAccessDenied) {
			return "Authorization was denied"
		}
		return oe.Description
	}
	return "Something went wrong connecting the account"
}

// clientIP returns the address of the caller. X-Forwarded-For is only
// read when the direct peer is a trusted proxy; hops are walked from the
// right and the first untrusted one wins.
func (s *Server) clientIP(r *http.Request) string {
	remote := r.RemoteAddr
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}
	if !s.isTrusted(remote) {
		return remote
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !s.isTrusted(hop) {
			return hop
		}
		remote = hop
	}
	return remote
}

func (s *Server) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range s.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// writeServiceError maps domain errors to HTTP statuses. Unknown errors
// are logged and reported as 500 without detail.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrUnsupportedPlatform):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "connection not found")
	case errors.Is(err, domain.ErrPlatformNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "platform not configured")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "platform rate limit exceeded, try again later")
	case errors.Is(err, domain.ErrTokenRefreshFailed):
		writeError(w, http.StatusConflict, "platform token could not be refreshed, reconnect the account")
	case errors.Is(err, domain.ErrActivityFailed), errors.Is(err, domain.ErrUserInfoFailed):
		writeError(w, http.StatusBadGateway, "platform request failed")
	default:
		telemetry.LoggerWithCorr(r.Context(), s.logger).Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
