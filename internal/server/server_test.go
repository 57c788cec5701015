package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spigell/interview-scorer/internal/analyzer"
	"github.com/spigell/interview-scorer/internal/evaluation"
	"github.com/spigell/interview-scorer/internal/interview"
	"github.com/spigell/interview-scorer/internal/metrics"
	"github.com/spigell/interview-scorer/internal/questions"
	"github.com/spigell/interview-scorer/internal/session"
)

const questionBank = `questions:
  - id: g1
    text: What is a goroutine?
    ideal_answer: A goroutine is a lightweight thread managed by the Go runtime.
  - What is a channel?
`

type testServer struct {
	srv *Server
	reg *prometheus.Registry
}

func newTestServer(t *testing.T, an Analyzer) testServer {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golang.yaml"), []byte(questionBank), 0o600))

	evaluator, err := evaluation.New(evaluation.Options{})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	svc := interview.NewService(interview.Deps{
		Questions: questions.NewBank(dir),
		Sessions:  session.NewTracker(session.NewMemoryStore(), nil),
		Evaluator: evaluator,
		Recorder:  m,
	})

	srv := New(Config{}, Deps{
		Service:  svc,
		Analyzer: an,
		Recorder: m,
		Gatherer: reg,
		Logger:   zap.NewNop(),
	})
	return testServer{srv: srv, reg: reg}
}

func (ts testServer) do(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()

	resp, err := ts.srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return resp.StatusCode, out
}

func (ts testServer) get(t *testing.T, path string, query url.Values) (int, map[string]any) {
	t.Helper()
	if query != nil {
		path += "?" + query.Encode()
	}
	return ts.do(t, httptest.NewRequest(http.MethodGet, path, nil))
}

func (ts testServer) post(t *testing.T, path string, body any) (int, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return ts.do(t, req)
}

func sessionParams(domain string) url.Values {
	return url.Values{
		"email":        {"Jane@Example.com"},
		"interview_id": {"int-1"},
		"domain":       {domain},
	}
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, "error object expected, got %v", body)
	return e["code"].(string)
}

func TestHealthAndRequestID(t *testing.T) {
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "req-42")
	resp, err := ts.srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "req-42", resp.Header.Get(requestIDHeader))

	resp, err = ts.srv.App().Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func TestQuestionFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	status, body := ts.get(t, "/question", sessionParams("golang"))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "g1", body["id"])
	assert.Equal(t, 1.0, body["index"])
	assert.Equal(t, 2.0, body["total"])

	_, body = ts.get(t, "/question", sessionParams("GOLANG"))
	assert.Equal(t, "q2", body["id"])
	assert.Equal(t, "What is a channel?", body["text"])

	_, body = ts.get(t, "/question", sessionParams("golang"))
	assert.Equal(t, true, body["done"])
	assert.NotContains(t, body, "id")
}

func TestQuestionFlowKeepsSessionAcrossRequests(t *testing.T) {
	ts := newTestServer(t, nil)

	var served []string
	for _, domain := range []string{"golang", "GOLANG", "golang", "golang"} {
		status, body := ts.get(t, "/question", sessionParams(domain))
		require.Equal(t, http.StatusOK, status)
		if body["done"] == true {
			served = append(served, "done")
		} else {
			served = append(served, body["id"].(string))
		}

		// Unrelated traffic reuses the request buffers in between.
		_, _ = ts.get(t, "/question", sessionParams("cobolg"))
		_, _ = ts.get(t, "/session", sessionParams("xxxxxx"))
	}
	assert.Equal(t, []string{"g1", "q2", "done", "done"}, served)

	status, body := ts.get(t, "/session", sessionParams("golang"))
	require.Equal(t, http.StatusOK, status)
	record, ok := body["session"].(map[string]any)
	require.True(t, ok, "session object expected, got %v", body)
	assert.Equal(t, "golang", record["domain"])
	assert.Equal(t, 2.0, record["current_question"])

	text := ts.metrics(t)
	assert.Contains(t, text, `interview_scorer_questions_served_total{domain="golang"} 2`)
	assert.NotContains(t, text, `domain="cobolg"`)
	assert.NotContains(t, text, `domain="xxxxxx"`)
}

func TestQuestionErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	params := sessionParams("golang")
	params.Del("email")
	status, body := ts.get(t, "/question", params)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_INPUT", errorCode(t, body))
	assert.Contains(t, body["error"].(map[string]any)["message"], "email")

	status, body = ts.get(t, "/question", sessionParams("cobol"))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(t, body))

	status, body = ts.get(t, "/question", sessionParams("../etc"))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_INPUT", errorCode(t, body))
}

func TestEvaluate(t *testing.T) {
	ts := newTestServer(t, nil)

	status, body := ts.post(t, "/evaluate", map[string]string{
		"user_response":  "goroutine scheduler",
		"reference_text": "goroutine stack",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 50.0, body["similarity_score"])
	assert.Equal(t, "lexical", body["tier"])
	assert.NotEmpty(t, body["feedback"])

	status, body = ts.post(t, "/evaluate", map[string]string{"user_response": "x"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_INPUT", errorCode(t, body))
}

func TestGenerateFeedback(t *testing.T) {
	ts := newTestServer(t, nil)

	status, body := ts.post(t, "/generate-feedback", map[string]any{
		"nlp":     map[string]any{"similarity_score": 90, "source_tier": "primary"},
		"emotion": map[string]any{"success": true, "dominant_emotion": "neutral"},
		"tone":    map[string]any{"success": true, "detected_emotion": "neu"},
		"posture": map[string]any{"success": false},
	})
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 0.8722, body["final_score"], 1e-4)
	assert.Equal(t, "Excellent", body["qualitative_rating"])
	assert.Equal(t, "local_heuristic", body["tier"])
	assert.Nil(t, body["sub_scores"].(map[string]any)["posture"])
	assert.NotContains(t, body["weights"], "posture")
	assert.Equal(t, map[string]any{"success": false}, body["posture_result"])

	status, body = ts.post(t, "/generate-feedback", map[string]any{"emotion": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_INPUT", errorCode(t, body))
}

func TestSubmitAndSession(t *testing.T) {
	ts := newTestServer(t, nil)

	status, body := ts.get(t, "/session", sessionParams("golang"))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(t, body))

	_, _ = ts.get(t, "/question", sessionParams("golang"))

	status, body = ts.post(t, "/submit", map[string]any{
		"email":        "jane@example.com",
		"interview_id": "int-1",
		"domain":       "golang",
		"question_id":  "g1",
		"answer":       "A goroutine is a lightweight thread managed by the Go runtime.",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["persisted"])
	assert.Equal(t, "lexical", body["domain_evaluation"].(map[string]any)["tier"])
	assert.InDelta(t, 100.0, body["domain_evaluation"].(map[string]any)["similarity_score"], 0.01)
	assert.NotEmpty(t, body["feedback"])

	status, body = ts.get(t, "/session", sessionParams("golang"))
	require.Equal(t, http.StatusOK, status)
	record := body["session"].(map[string]any)
	assert.Equal(t, 1.0, record["current_question"])
	assert.Len(t, record["results"], 1)

	status, body = ts.post(t, "/submit", map[string]any{
		"email":        "jane@example.com",
		"interview_id": "int-1",
		"domain":       "golang",
		"question_id":  "nope",
	})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(t, body))

	status, body = ts.post(t, "/submit", map[string]any{"email": "jane@example.com"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_INPUT", errorCode(t, body))
}

func TestResetSession(t *testing.T) {
	ts := newTestServer(t, nil)

	_, _ = ts.get(t, "/question", sessionParams("golang"))
	status, body := ts.post(t, "/session/reset", map[string]string{
		"email":        "jane@example.com",
		"interview_id": "int-1",
		"domain":       "golang",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])

	_, body = ts.get(t, "/question", sessionParams("golang"))
	assert.Equal(t, "g1", body["id"])
}

func multipartRequest(t *testing.T, path, field, filename string, content []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if field != "" {
		part, err := w.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.WriteField("language", "en"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestAnalyzerProxy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"dominant_emotion": "happy",
			"filename":         header.Filename,
			"size":             len(data),
			"language":         r.FormValue("language"),
		})
	}))
	defer upstream.Close()

	an := analyzer.New(analyzer.Config{Emotion: upstream.URL}, zap.NewNop())
	ts := newTestServer(t, an)

	status, body := ts.do(t, multipartRequest(t, "/detect-emotion", "image", "face.jpg", []byte("jpeg-bytes")))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "happy", body["dominant_emotion"])
	assert.Equal(t, "face.jpg", body["filename"])
	assert.Equal(t, 10.0, body["size"])
	assert.Equal(t, "en", body["language"])

	status, body = ts.do(t, multipartRequest(t, "/detect-emotion", "", "", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["success"])

	status, body = ts.do(t, multipartRequest(t, "/analyze-tone", "audio", "a.wav", []byte("riff")))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "not configured")
}

func TestAnalyzerProxyWithoutClient(t *testing.T) {
	ts := newTestServer(t, nil)

	status, body := ts.do(t, multipartRequest(t, "/transcribe", "audio", "a.wav", []byte("riff")))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["success"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	_, _ = ts.get(t, "/question", sessionParams("golang"))
	_, _ = ts.get(t, "/question", sessionParams("cobol"))

	text := ts.metrics(t)
	assert.True(t, strings.Contains(text, `interview_scorer_http_requests_total{method="GET",path="/question",status="200"} 1`), text)
	assert.True(t, strings.Contains(text, `interview_scorer_http_requests_total{method="GET",path="/question",status="404"} 1`), text)
	assert.True(t, strings.Contains(text, `interview_scorer_questions_served_total{domain="golang"} 1`), text)
}

func (ts testServer) metrics(t *testing.T) string {
	t.Helper()
	resp, err := ts.srv.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}
