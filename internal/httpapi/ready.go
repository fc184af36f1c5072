package httpapi

import (
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type readinessCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok | warn | error
	Detail string `json:"detail"`
}

type readinessResponse struct {
	Status string           `json:"status"`
	Checks []readinessCheck `json:"checks"`
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	checks := []readinessCheck{
		s.checkChatBackend(),
		credentialCheck("baidu_credentials", s.cfg.BaiduConfigured(), "BAIDU_API_KEY and BAIDU_SECRET_KEY"),
		credentialCheck("volcano_credentials", s.cfg.VolcanoConfigured(), "VOLCANO_APP_ID and VOLCANO_ACCESS_TOKEN"),
		s.checkArtifactDir(),
	}

	resp := readinessResponse{Status: "ready", Checks: checks}
	status := http.StatusOK
	for _, c := range checks {
		if c.Status == "error" {
			resp.Status = "not_ready"
			status = http.StatusServiceUnavailable
			break
		}
		if c.Status == "warn" {
			resp.Status = "degraded"
		}
	}
	respondJSON(w, status, resp)
}

// A missing provider only disables its stage, so readiness reports it as a warning.
func credentialCheck(id string, configured bool, keys string) readinessCheck {
	if configured {
		return readinessCheck{ID: id, Status: "ok", Detail: "configured"}
	}
	return readinessCheck{ID: id, Status: "warn", Detail: "set " + keys}
}

func (s *Server) checkChatBackend() readinessCheck {
	u, err := url.Parse(strings.TrimSpace(s.cfg.APIBaseURL))
	if err != nil || u.Host == "" {
		return readinessCheck{ID: "chat_backend", Status: "error", Detail: "invalid API_BASE_URL"}
	}
	host := u.Host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}
	conn, err := net.DialTimeout("tcp", host, 250*time.Millisecond)
	if err != nil {
		return readinessCheck{ID: "chat_backend", Status: "warn", Detail: "unreachable at " + host + "; replies fall back to a notice"}
	}
	_ = conn.Close()
	return readinessCheck{ID: "chat_backend", Status: "ok", Detail: "reachable at " + host}
}

func (s *Server) checkArtifactDir() readinessCheck {
	if s.artifacts == nil {
		return readinessCheck{ID: "artifact_dir", Status: "error", Detail: "artifact storage not configured"}
	}
	dir := s.artifacts.Dir()
	f, err := os.CreateTemp(dir, ".ready-*")
	if err != nil {
		return readinessCheck{ID: "artifact_dir", Status: "error", Detail: "not writable: " + err.Error()}
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return readinessCheck{ID: "artifact_dir", Status: "ok", Detail: filepath.Clean(dir)}
}
