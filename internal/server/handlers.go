package server

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"

	"github.com/nupi-ai/shellboot/internal/bootstrap"
	"github.com/nupi-ai/shellboot/internal/constants"
	"github.com/nupi-ai/shellboot/internal/mode"
	"github.com/nupi-ai/shellboot/internal/shell"
	"github.com/nupi-ai/shellboot/internal/version"
)

type healthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Bootstrap bootstrap.Phase `json:"bootstrap"`
}

type stateResponse struct {
	Bootstrap bootstrap.Status `json:"bootstrap"`
	Page      *shell.Page      `json:"page,omitempty"`
	State     map[string]any   `json:"state,omitempty"`
}

func (s *Server) currentStatus() bootstrap.Status {
	if s.status == nil {
		return bootstrap.Status{Phase: bootstrap.PhaseIdle}
	}
	return s.status.Status()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Version:   version.String(),
		Bootstrap: s.currentStatus().Phase,
	})
}

// handleState reports the bootstrap status with the page and store state
// once mounted. A failed bootstrap answers 503 with the failure.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	status := s.currentStatus()
	resp := stateResponse{Bootstrap: status}
	if status.Phase == bootstrap.PhaseFailed {
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	if st := s.pages.Store(); st != nil {
		page := s.pages.Snapshot()
		resp.Page = &page
		resp.State = st.State()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePage navigates to the named page. "wait" blocks until the plugins
// settled; "format=html" or an HTML Accept header returns the markup.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PathValue("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "page name is required")
		return
	}

	page, err := s.pages.Navigate(name, requestMode(r))
	if err != nil {
		s.writeNavigateError(w, err)
		return
	}

	if flag(r, "wait") && !page.Ready {
		ctx, cancel := context.WithTimeout(r.Context(), constants.PluginLoadTimeout)
		defer cancel()
		waited, err := s.pages.Wait(ctx)
		switch {
		case err == nil:
			page = waited
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			page = s.pages.Snapshot()
		default:
			s.writeNavigateError(w, err)
			return
		}
	}

	code := http.StatusOK
	if !page.Ready {
		code = http.StatusAccepted
	}
	if wantsHTML(r) {
		writeMarkup(w, code, page)
		return
	}
	writeJSON(w, code, page)
}

func (s *Server) writeNavigateError(w http.ResponseWriter, err error) {
	if !errors.Is(err, shell.ErrNotMounted) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := s.currentStatus()
	resp := ErrorResponse{Error: "shell not mounted", Stage: string(status.Stage)}
	if status.Phase == bootstrap.PhaseFailed && status.Error != "" {
		resp.Error = status.Error
	}
	writeJSON(w, http.StatusServiceUnavailable, resp)
}

func writeMarkup(w http.ResponseWriter, code int, page shell.Page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if !page.Ready {
		fmt.Fprintf(w, "<div id=\"%s\"><div class=\"gn-main-loader\"></div></div>", html.EscapeString(page.Target))
		return
	}
	io.WriteString(w, page.Markup)
}

// requestMode returns the mode asked for by the query or the user agent, or
// the empty mode to keep the shell's own.
func requestMode(r *http.Request) mode.Mode {
	query := r.URL.Query()
	viewport := mode.Viewport{Mobile: strings.Contains(r.UserAgent(), "Mobi")}
	if query.Has("mode") || query.Has("mobile") || viewport.Mobile {
		return mode.Resolve(query, viewport)
	}
	return ""
}

func flag(r *http.Request, key string) bool {
	query := r.URL.Query()
	if !query.Has(key) {
		return false
	}
	switch strings.ToLower(query.Get(key)) {
	case "0", "false", "no":
		return false
	}
	return true
}

func wantsHTML(r *http.Request) bool {
	if r.URL.Query().Get("format") == "html" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
