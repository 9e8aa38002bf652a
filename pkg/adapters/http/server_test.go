package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/novella"
	"github.com/aretw0/novella/pkg/adapters/memory"
	"github.com/aretw0/novella/pkg/domain"
	"github.com/aretw0/novella/pkg/dsl"
	"github.com/aretw0/novella/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pierEngine(t *testing.T) *novella.Engine {
	t.Helper()
	trust := domain.Modify(domain.TargetRelationship, "trust", domain.OpAdd, 6)
	trust.Modify.Character = "mara"

	b := dsl.New("pier").Title("Pier").
		Stat("courage", 0, 10, 0).
		Relationship("mara", "trust", 0,
			domain.Stage{Name: "stranger", Threshold: 0},
			domain.Stage{Name: "friend", Threshold: 5})
	b.Start("start").Go("dock")
	b.Scene("dock").Title("Dock").Text("Fog rolls in.").
		Do(domain.Modify(domain.TargetStat, "courage", domain.OpAdd, 2)).
		Go("ask")
	b.Choice("ask").Text("Where to?").
		Option("stay", "Stay ashore", "home").
		Option("sail", "Sail with Mara", "sea").Do(trust).
		Option("swim", "Swim", "sea").If("stat.courage >= 9")
	b.Ending("home", "home", "NORMAL")
	b.Ending("sea", "sea", "GOOD")

	loader, err := b.Loader()
	require.NoError(t, err)
	eng, err := novella.New("", novella.WithLoader(loader))
	require.NoError(t, err)
	return eng
}

func newTestServer(t *testing.T, engine Engine) *Server {
	t.Helper()
	srv, err := NewServer(engine, session.NewManager(memory.NewStore()), WithGatherer(prometheus.NewRegistry()))
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestServer_HealthAndInfo(t *testing.T) {
	srv := newTestServer(t, pierEngine(t))

	w := do(t, srv, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = do(t, srv, "GET", "/info", "")
	require.Equal(t, http.StatusOK, w.Code)
	info := decode(t, w)
	assert.Equal(t, "novella-http", info["app"])
	assert.Equal(t, "1.0.0", info["api_version"])

	w = do(t, srv, "GET", "/openapi.yaml", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "openapi: 3.0.3")

	w = do(t, srv, "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_Stories(t *testing.T) {
	srv := newTestServer(t, pierEngine(t))

	w := do(t, srv, "GET", "/stories", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stories []storySummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stories))
	require.Len(t, stories, 1)
	assert.Equal(t, "pier", stories[0].ID)
	assert.Equal(t, "Pier", stories[0].Title)
	assert.Equal(t, []string{stories[0].Latest}, stories[0].Versions)

	w = do(t, srv, "GET", "/stories/pier", "")
	require.Equal(t, http.StatusOK, w.Code)
	var detail storyDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, "start", detail.StartNodeID)
	assert.Equal(t, 5, detail.Nodes)

	w = do(t, srv, "GET", "/stories/castle", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, srv, "GET", "/stories/pier?version=99", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_Playthrough(t *testing.T) {
	srv := newTestServer(t, pierEngine(t))

	w := do(t, srv, "POST", "/playthroughs", `{"story_id":"pier","playthrough_id":"p1","seed":7}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	step := decode(t, w)
	assert.Equal(t, "show_scene", step["presentation"].(map[string]any)["kind"])
	assert.Equal(t, 2.0, step["diff"].(map[string]any)["stats"].(map[string]any)["courage"])

	w = do(t, srv, "GET", "/playthroughs", "")
	assert.JSONEq(t, `{"playthroughs":["p1"]}`, w.Body.String())

	w = do(t, srv, "GET", "/playthroughs/p1/choices", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "a scene has no choices")

	w = do(t, srv, "POST", "/playthroughs/p1/resume", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	choices := decode(t, w)["presentation"].(map[string]any)["choices"].(map[string]any)
	assert.Len(t, choices["options"], 2)
	assert.Len(t, choices["locked"], 1)

	w = do(t, srv, "GET", "/playthroughs/p1/choices", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"node_id":"ask","options":[{"id":"stay","text":"Stay ashore"},{"id":"sail","text":"Sail with Mara"}]}`, w.Body.String())

	w = do(t, srv, "GET", "/playthroughs/p1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "show_choices", decode(t, w)["presentation"].(map[string]any)["kind"])

	w = do(t, srv, "POST", "/playthroughs/p1/resume", `{"option_id":"swim"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, srv, "POST", "/playthroughs/p1/resume", `{"option_id":"sail"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	end := decode(t, w)
	assert.Equal(t, "sea", end["ending"].(map[string]any)["ending_id"])
	assert.Equal(t, "friend", end["stages"].(map[string]any)["mara/trust"])

	w = do(t, srv, "POST", "/playthroughs/p1/resume", `{}`)
	assert.Equal(t, http.StatusConflict, w.Code, "the playthrough has ended")

	w = do(t, srv, "GET", "/stories/pier/graph?playthrough=p1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "graph TD")
	assert.Contains(t, w.Body.String(), "class sea current;")

	w = do(t, srv, "DELETE", "/playthroughs/p1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, srv, "GET", "/playthroughs/p1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_Errors(t *testing.T) {
	srv := newTestServer(t, pierEngine(t))

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"missing story id", "POST", "/playthroughs", `{}`, http.StatusBadRequest},
		{"unknown field", "POST", "/playthroughs", `{"story_id":"pier","chapter":2}`, http.StatusBadRequest},
		{"seed is not a number", "POST", "/playthroughs", `{"story_id":"pier","seed":"x"}`, http.StatusBadRequest},
		{"unknown story", "POST", "/playthroughs", `{"story_id":"castle"}`, http.StatusNotFound},
		{"unknown playthrough", "POST", "/playthroughs/nope/resume", `{}`, http.StatusNotFound},
		{"unknown playthrough graph", "GET", "/stories/pier/graph?playthrough=nope", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.Contains(t, decode(t, w), "error")
		})
	}

	w := do(t, srv, "POST", "/playthroughs", `{"story_id":"pier","playthrough_id":"dup"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	w = do(t, srv, "POST", "/playthroughs", `{"story_id":"pier","playthrough_id":"dup"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestServer_PlaythroughEvents(t *testing.T) {
	srv := newTestServer(t, pierEngine(t))
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/playthroughs", "application/json", strings.NewReader(`{"story_id":"pier","playthrough_id":"p1"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/events?playthrough=p1&watch=ending", nil)
	require.NoError(t, err)
	events, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer events.Body.Close()
	assert.Equal(t, "text/event-stream", events.Header.Get("Content-Type"))

	lines := bufio.NewScanner(events.Body)
	readData := func() string {
		for lines.Scan() {
			if data, ok := strings.CutPrefix(lines.Text(), "data: "); ok {
				return data
			}
		}
		return ""
	}
	require.Equal(t, "connected", readData())

	// The scene step changes no watched field and is filtered out.
	for _, body := range []string{`{}`, `{"option_id":"stay"}`} {
		resp, err := http.Post(ts.URL+"/playthroughs/p1/resume", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	var diff domain.StateDiff
	require.NoError(t, json.Unmarshal([]byte(readData()), &diff))
	assert.Equal(t, "p1", diff.PlaythroughID)
	require.NotNil(t, diff.Ending)
	assert.Equal(t, "home", diff.Ending.EndingID)
}

type reloadingEngine struct {
	*novella.Engine
	reloads chan string
}

func (e *reloadingEngine) Watch(ctx context.Context) (<-chan string, error) {
	return e.reloads, nil
}

func TestServer_ReloadEvents(t *testing.T) {
	eng := &reloadingEngine{Engine: pierEngine(t), reloads: make(chan string, 1)}
	eng.reloads <- "pier"
	close(eng.reloads)
	srv := newTestServer(t, eng)

	w := do(t, srv, "GET", "/events", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "data: connected")
	assert.Contains(t, w.Body.String(), "event: reload\ndata: pier\n\n")
}

func TestMatchesWatch(t *testing.T) {
	diff := &domain.StateDiff{Flags: map[string]bool{"met_npc": true}}
	assert.True(t, matchesWatch(diff, nil))
	assert.True(t, matchesWatch(diff, parseWatch("stats, flags")))
	assert.False(t, matchesWatch(diff, parseWatch("stats,ending")))
	assert.Nil(t, parseWatch(""))
}

func TestStreamManager_Unsubscribe(t *testing.T) {
	sm := NewStreamManager(nil)
	_, cancel := sm.Subscribe("p1")
	assert.Equal(t, 1, sm.Subscribers("p1"))
	cancel()
	cancel()
	assert.Equal(t, 0, sm.Subscribers("p1"))
}
