package server_test

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nupi-ai/shellboot/internal/bootstrap"
	"github.com/nupi-ai/shellboot/internal/epics"
	"github.com/nupi-ai/shellboot/internal/eventbus"
	"github.com/nupi-ai/shellboot/internal/mode"
	"github.com/nupi-ai/shellboot/internal/plugins"
	"github.com/nupi-ai/shellboot/internal/server"
	"github.com/nupi-ai/shellboot/internal/shell"
	"github.com/nupi-ai/shellboot/internal/store"
	"github.com/nupi-ai/shellboot/internal/version"
)

var discard = log.New(io.Discard, "", 0)

type fixedStatus bootstrap.Status

func (f fixedStatus) Status() bootstrap.Status { return bootstrap.Status(f) }

type label string

func (l label) Name() string { return string(l) }

func (l label) Render(props map[string]any) (string, error) {
	return "<" + string(l) + "/>", nil
}

func mountedShell(t *testing.T, bus *eventbus.Bus) *shell.Shell {
	t.Helper()
	sh := shell.New(shell.WithLogger(discard), shell.WithBus(bus))
	err := sh.Mount(context.Background(), bootstrap.Wiring{
		Runtime: bootstrap.RuntimeConfiguration{
			TargetID:     "ms-container",
			Mode:         mode.Desktop,
			InitialState: map[string]any{store.SliceMapType: map[string]any{"mapType": store.DefaultMapType}},
		},
		PluginsConfig: plugins.Paged(map[string][]plugins.Entry{
			"viewer": {{Name: "Toolbar"}},
			"about":  {{Name: "Toolbar"}, {Name: "Footer"}},
		}),
		Catalog: plugins.NewCatalog(
			plugins.Static("Toolbar", label("toolbar")),
			plugins.Static("Footer", label("footer")),
		),
		Reducers: store.DefaultReducers(),
		Epics:    epics.Set{},
	})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	t.Cleanup(func() { sh.Shutdown(context.Background()) })
	return sh
}

func get(t *testing.T, h http.Handler, target string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthReportsVersionAndPhase(t *testing.T) {
	t.Cleanup(version.ForTesting("0.4.0"))

	srv := server.New(shell.New(), fixedStatus{Phase: bootstrap.PhaseMounted}, server.WithLogger(discard))
	rec := get(t, srv.Handler(), "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["version"] != "0.4.0" || body["bootstrap"] != "mounted" {
		t.Fatalf("body = %v", body)
	}
}

func TestStateExposesFailure(t *testing.T) {
	t.Parallel()

	status := fixedStatus{Phase: bootstrap.PhaseFailed, Stage: bootstrap.StageFetchConfigAndAccount, Error: "boom"}
	srv := server.New(shell.New(), status, server.WithLogger(discard))

	rec := get(t, srv.Handler(), "/state")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Bootstrap bootstrap.Status `json:"bootstrap"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Bootstrap.Phase != bootstrap.PhaseFailed || body.Bootstrap.Error != "boom" {
		t.Fatalf("bootstrap = %+v", body.Bootstrap)
	}

	rec = get(t, srv.Handler(), "/pages/viewer")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "boom") {
		t.Fatalf("page on failed bootstrap = %d %s", rec.Code, rec.Body.String())
	}
}

func TestStateIncludesStoreWhenMounted(t *testing.T) {
	t.Parallel()

	srv := server.New(mountedShell(t, nil), fixedStatus{Phase: bootstrap.PhaseMounted}, server.WithLogger(discard))
	rec := get(t, srv.Handler(), "/state")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Page  shell.Page     `json:"page"`
		State map[string]any `json:"state"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Page.Name != shell.DefaultPage || !body.Page.Ready {
		t.Fatalf("page = %+v", body.Page)
	}
	if _, ok := body.State[store.SliceMapType]; !ok {
		t.Fatalf("state = %v", body.State)
	}
}

func TestPageNavigation(t *testing.T) {
	t.Parallel()

	srv := server.New(mountedShell(t, nil), fixedStatus{Phase: bootstrap.PhaseMounted}, server.WithLogger(discard))

	rec := get(t, srv.Handler(), "/pages/about?wait=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var page shell.Page
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Name != "about" || page.Mode != mode.Desktop || len(page.Plugins) != 2 {
		t.Fatalf("page = %+v", page)
	}

	rec = get(t, srv.Handler(), "/pages/about", "Accept", "text/html")
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "<toolbar/><footer/>") {
		t.Fatalf("markup = %s", rec.Body.String())
	}

	rec = get(t, srv.Handler(), "/pages/about?mode=embedded")
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Mode != mode.Embedded {
		t.Fatalf("mode = %s", page.Mode)
	}
}

func TestPageNotMounted(t *testing.T) {
	t.Parallel()

	status := fixedStatus{Phase: bootstrap.PhaseRunning, Stage: bootstrap.StageFetchEndpoints}
	srv := server.New(shell.New(), status, server.WithLogger(discard))

	rec := get(t, srv.Handler(), "/pages/viewer")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	var body server.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Stage != string(bootstrap.StageFetchEndpoints) {
		t.Fatalf("body = %+v", body)
	}
}

func TestWebSocketStreamsStatus(t *testing.T) {
	t.Parallel()

	bus := eventbus.New(eventbus.WithLogger(discard))
	srv := server.New(shell.New(), fixedStatus{}, server.WithLogger(discard), server.WithBus(bus), server.WithAddr("127.0.0.1:0"))
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var hello server.Message
	if err := conn.ReadJSON(&hello); err != nil || hello.Type != server.MessageHello {
		t.Fatalf("hello = %+v err=%v", hello, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for srv.Hub().Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	eventbus.Publish(context.Background(), bus, bootstrap.TopicStatus, eventbus.SourceBootstrap,
		bootstrap.Status{Phase: bootstrap.PhaseMounted, Stage: bootstrap.StageMount})

	var msg server.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != server.MessageStatus {
		t.Fatalf("type = %s", msg.Type)
	}
	var status bootstrap.Status
	if err := json.Unmarshal(msg.Data, &status); err != nil || status.Phase != bootstrap.PhaseMounted {
		t.Fatalf("status = %+v err=%v", status, err)
	}
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	t.Parallel()

	srv := server.New(shell.New(), fixedStatus{}, server.WithLogger(discard), server.WithAllowedOrigins("https://maps.example.org"))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Hub().Run(ctx)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	header := http.Header{"Origin": {"https://evil.example.com"}}
	if _, resp, err := websocket.DefaultDialer.Dial(url, header); err == nil || resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign origin accepted: %v", err)
	}

	header.Set("Origin", "https://maps.example.org")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("allowed origin rejected: %v", err)
	}
	conn.Close()
}
