package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/insightai/internal/config"
	"github.com/xxxsen/insightai/internal/index"
	"github.com/xxxsen/insightai/internal/lifecycle"
	"github.com/xxxsen/insightai/internal/model"
	"github.com/xxxsen/insightai/internal/pkg/errcode"
	appErr "github.com/xxxsen/insightai/internal/pkg/errors"
	"github.com/xxxsen/insightai/internal/pkg/jwt"
	"github.com/xxxsen/insightai/internal/retrieval"
	"github.com/xxxsen/insightai/internal/service"
	"github.com/xxxsen/insightai/internal/source"
)

var testSecret = []byte("test-secret")

type fakeManager struct {
	published *index.Published
	outcome   lifecycle.Outcome
	last      *lifecycle.Outcome
	sources   []source.Source
}

func (f *fakeManager) RunCycle(ctx context.Context) lifecycle.Outcome {
	return f.outcome
}

func (f *fakeManager) RunWithSources(ctx context.Context, sources []source.Source) lifecycle.Outcome {
	f.sources = sources
	return f.outcome
}

func (f *fakeManager) State() lifecycle.State {
	return lifecycle.StateIdle
}

func (f *fakeManager) LastOutcome() (lifecycle.Outcome, bool) {
	if f.last == nil {
		return lifecycle.Outcome{}, false
	}
	return *f.last, true
}

func (f *fakeManager) Published() *index.Published {
	return f.published
}

type fakeAsker struct {
	result   *service.AskResult
	search   *retrieval.Result
	err      error
	question string
	k        int
}

func (f *fakeAsker) Ask(ctx context.Context, question string, k int) (*service.AskResult, error) {
	f.question = question
	f.k = k
	return f.result, f.err
}

func (f *fakeAsker) Search(ctx context.Context, query string, k int) (*retrieval.Result, error) {
	f.question = query
	f.k = k
	return f.search, f.err
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func setupRouter(t *testing.T, mgr *fakeManager, asker *fakeAsker) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if mgr.published == nil {
		mgr.published = index.NewPublished()
	}
	r := gin.New()
	RegisterRoutes(&r.RouterGroup, RouterDeps{
		Index: NewIndexHandler(mgr, config.FetchConfig{Timeout: 1}, func() (time.Time, bool) {
			return time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC), true
		}),
		Ask:           NewAskHandler(asker),
		JWTSecret:     testSecret,
		AskRateWindow: 0,
	})
	return r
}

func doRequest(t *testing.T, r http.Handler, method, path string, body interface{}, token string) envelope {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func operatorToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.GenerateToken("ops", testSecret, time.Hour)
	require.NoError(t, err)
	return token
}

func TestAskSuccess(t *testing.T) {
	asker := &fakeAsker{result: &service.AskResult{Question: "what?", Answer: "this", GenerationID: "g1"}}
	r := setupRouter(t, &fakeManager{}, asker)

	env := doRequest(t, r, http.MethodPost, "/api/v1/ask", map[string]interface{}{"question": "what?", "top_k": 3}, "")
	require.Equal(t, 0, env.Code)
	var got service.AskResult
	require.NoError(t, json.Unmarshal(env.Data, &got))
	require.Equal(t, "this", got.Answer)
	require.Equal(t, "what?", asker.question)
	require.Equal(t, 3, asker.k)
}

func TestAskErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"not ready", appErr.ErrNotReady, errcode.ErrNotReady},
		{"no relevant", appErr.ErrNoRelevant, errcode.ErrNoRelevant},
		{"invalid", appErr.ErrInvalid, errcode.ErrInvalid},
		{"query", appErr.ErrQuery, errcode.ErrQuery},
		{"other", context.DeadlineExceeded, errcode.ErrInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := setupRouter(t, &fakeManager{}, &fakeAsker{err: tc.err})
			env := doRequest(t, r, http.MethodPost, "/api/v1/ask", map[string]interface{}{"question": "q"}, "")
			require.Equal(t, tc.code, env.Code)
		})
	}
}

func TestAskRejectsBadBody(t *testing.T) {
	asker := &fakeAsker{}
	r := setupRouter(t, &fakeManager{}, asker)
	env := doRequest(t, r, http.MethodPost, "/api/v1/ask", map[string]interface{}{"question": "q", "top_k": -1}, "")
	require.Equal(t, errcode.ErrInvalid, env.Code)
	require.Empty(t, asker.question)
}

func TestSearch(t *testing.T) {
	asker := &fakeAsker{search: &retrieval.Result{GenerationID: "g1"}}
	r := setupRouter(t, &fakeManager{}, asker)

	env := doRequest(t, r, http.MethodGet, "/api/v1/search?q=markets&k=2", nil, "")
	require.Equal(t, 0, env.Code)
	require.Equal(t, "markets", asker.question)
	require.Equal(t, 2, asker.k)

	env = doRequest(t, r, http.MethodGet, "/api/v1/search?q=markets&k=abc", nil, "")
	require.Equal(t, errcode.ErrInvalid, env.Code)
}

func TestRebuildRequiresToken(t *testing.T) {
	r := setupRouter(t, &fakeManager{outcome: lifecycle.Outcome{Status: lifecycle.StatusSuccess}}, &fakeAsker{})
	env := doRequest(t, r, http.MethodPost, "/api/v1/index/rebuild", nil, "")
	require.Equal(t, errcode.ErrUnauthorized, env.Code)
}

func TestRebuildOutcomes(t *testing.T) {
	cases := []struct {
		name    string
		outcome lifecycle.Outcome
		code    int
	}{
		{"success", lifecycle.Outcome{Status: lifecycle.StatusSuccess, GenerationID: "g2"}, 0},
		{"noop", lifecycle.Outcome{Status: lifecycle.StatusNoop}, 0},
		{"rejected", lifecycle.Outcome{Status: lifecycle.StatusRejected}, errcode.ErrRebuildRunning},
		{"failed", lifecycle.Outcome{Status: lifecycle.StatusFailed, Stage: lifecycle.StateEmbedding, Error: "quota"}, errcode.ErrRebuildFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := setupRouter(t, &fakeManager{outcome: tc.outcome}, &fakeAsker{})
			env := doRequest(t, r, http.MethodPost, "/api/v1/index/rebuild", nil, operatorToken(t))
			require.Equal(t, tc.code, env.Code)
			if tc.code == errcode.ErrRebuildFailed {
				require.Contains(t, env.Msg, "embedding")
			}
		})
	}
}

func TestIndexURLs(t *testing.T) {
	mgr := &fakeManager{outcome: lifecycle.Outcome{Status: lifecycle.StatusSuccess}}
	r := setupRouter(t, mgr, &fakeAsker{})
	token := operatorToken(t)

	env := doRequest(t, r, http.MethodPost, "/api/v1/index/urls", map[string]interface{}{
		"urls": []string{"https://example.com/a", " https://example.com/a ", "https://example.com/b"},
	}, token)
	require.Equal(t, 0, env.Code)
	require.Len(t, mgr.sources, 2)
	require.Equal(t, "https://example.com/a", mgr.sources[0].Name())

	mgr.sources = nil
	env = doRequest(t, r, http.MethodPost, "/api/v1/index/urls", map[string]interface{}{"urls": []string{}}, token)
	require.Equal(t, errcode.ErrInvalid, env.Code)
	require.Nil(t, mgr.sources)

	env = doRequest(t, r, http.MethodPost, "/api/v1/index/urls", map[string]interface{}{"urls": []string{"ftp://example.com"}}, token)
	require.Equal(t, errcode.ErrInvalid, env.Code)

	many := make([]string, 0, maxAdhocURLs+1)
	for i := 0; i <= maxAdhocURLs; i++ {
		many = append(many, "https://example.com/"+string(rune('a'+i)))
	}
	env = doRequest(t, r, http.MethodPost, "/api/v1/index/urls", map[string]interface{}{"urls": many}, token)
	require.Equal(t, errcode.ErrInvalid, env.Code)
}

func TestStatus(t *testing.T) {
	published := index.NewPublished()
	gen, err := index.Build([]index.Entry{
		{Vector: []float32{1, 0}, Chunk: model.Chunk{Text: "a", Source: "s"}},
	})
	require.NoError(t, err)
	published.Swap(gen)
	last := lifecycle.Outcome{Status: lifecycle.StatusSuccess, GenerationID: gen.ID()}
	r := setupRouter(t, &fakeManager{published: published, last: &last}, &fakeAsker{})

	env := doRequest(t, r, http.MethodGet, "/api/v1/index/status", nil, "")
	require.Equal(t, 0, env.Code)
	var got indexStatusResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	require.Equal(t, lifecycle.StateIdle, got.State)
	require.NotNil(t, got.Generation)
	require.Equal(t, gen.ID(), got.Generation.ID)
	require.Equal(t, 1, got.Generation.Chunks)
	require.Equal(t, 2, got.Generation.Dimension)
	require.NotNil(t, got.LastOutcome)
	require.NotNil(t, got.NextRebuild)
}

func TestStatusEmpty(t *testing.T) {
	r := setupRouter(t, &fakeManager{}, &fakeAsker{})
	env := doRequest(t, r, http.MethodGet, "/api/v1/index/status", nil, "")
	require.Equal(t, 0, env.Code)
	var got indexStatusResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	require.Nil(t, got.Generation)
	require.Nil(t, got.LastOutcome)
}

func TestPage(t *testing.T) {
	r := setupRouter(t, &fakeManager{}, &fakeAsker{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "/api/v1/ask")
}
