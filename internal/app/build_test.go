package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ent0n29/mbtivoice/internal/config"
	"github.com/ent0n29/mbtivoice/internal/session"
	"github.com/ent0n29/mbtivoice/internal/voice"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.ArtifactDir = t.TempDir()
	cfg.MetricsNamespace = fmt.Sprintf("test_app_%d", time.Now().UnixNano())
	return cfg
}

func TestBuildWithoutExternalServices(t *testing.T) {
	built, err := Build(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
	}()

	p := built.Providers
	if p.Baidu || p.Volcano {
		t.Fatalf("providers = %+v, want both unconfigured", p)
	}
	if p.TokenCache != "memory" || p.Mirror != "none" || p.Archive != "in-memory" {
		t.Fatalf("providers = %+v, want local fallbacks", p)
	}

	ts := httptest.NewServer(built.API.Router())
	defer ts.Close()
	res, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d, want %d", res.StatusCode, http.StatusOK)
	}
}

func TestBuildTextTurnWithoutProviders(t *testing.T) {
	cfg := testConfig(t)
	// Nothing listens here, so the reply degrades to the notice.
	cfg.APIBaseURL = "http://127.0.0.1:1"
	cfg.ChatTimeout = time.Second
	built, err := Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer built.Cleanup()

	sess := built.Sessions.Create(sessionRequest())
	res, err := built.Orchestrator.Submit(context.Background(), sess.ID, turnRequest("hello"), nil)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !res.Degraded || res.Reply == "" {
		t.Fatalf("result = %+v, want degraded reply", res)
	}
	if res.AudioURL != "" {
		t.Fatalf("AudioURL = %q, want none without synthesis credentials", res.AudioURL)
	}
	hist, err := built.Sessions.History(sess.ID)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("history len = %d, want 1", len(hist))
	}
}

func TestBuildTwiceInOneProcess(t *testing.T) {
	for i := 0; i < 2; i++ {
		built, err := Build(context.Background(), testConfig(t))
		if err != nil {
			t.Fatalf("Build() #%d error = %v", i, err)
		}
		if err := built.Cleanup(); err != nil {
			t.Fatalf("Cleanup() #%d error = %v", i, err)
		}
	}
}

func TestBuildRejectsUnreachableRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisURL = "redis://127.0.0.1:1/0"
	if _, err := Build(context.Background(), cfg); err == nil {
		t.Fatalf("Build() with unreachable redis expected error")
	}
}

func sessionRequest() session.CreateRequest {
	return session.CreateRequest{Language: "English"}
}

func turnRequest(text string) voice.TurnRequest {
	return voice.TurnRequest{Text: text}
}
