package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-qa/internal/config"
	"document-qa/internal/embedding"
	"document-qa/internal/llmservice"
	"document-qa/internal/models"
	"document-qa/internal/parser"
	"document-qa/internal/rag"
	"document-qa/internal/router"
	"document-qa/internal/store"
	"document-qa/internal/vectorindex"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	e := embedding.NewHashingEmbedder(128)
	st := store.New(e, vectorindex.NewMemory(), store.WithMaxDocuments(2))
	rt := router.New(st, e, llmservice.NewExtractive(3))
	svc := rag.NewRAG(st, rt, parser.NewExtractor(), rag.Options{})

	srv := httptest.NewServer(NewRouter(&config.Default().Server, svc))
	t.Cleanup(srv.Close)
	return srv
}

func uploadFiles(t *testing.T, srv *httptest.Server, files map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for name, content := range files {
		part, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	resp, err := http.Post(srv.URL+"/upload", w.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func postQuery(t *testing.T, srv *httptest.Server, query, action string) *http.Response {
	t.Helper()
	payload, _ := json.Marshal(queryRequest{Query: query, Action: action})
	resp, err := http.Post(srv.URL+"/query", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[map[string]string](t, resp)["status"])
}

func TestUploadThenQuery(t *testing.T) {
	srv := newTestServer(t)

	resp := uploadFiles(t, srv, map[string]string{"notes.txt": "The capital of France is Paris."})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := decode[models.IngestReport](t, resp)
	assert.Equal(t, 1, report.Count)
	assert.Equal(t, "notes.txt", report.Files[0].Filename)

	resp = postQuery(t, srv, "What is the capital of France?", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ans := decode[models.Answer](t, resp)
	assert.Contains(t, ans.Text, "Paris")
	assert.Equal(t, []string{"notes.txt"}, ans.References)

	resp = postQuery(t, srv, "", "summarize")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.KindSummary, decode[models.Answer](t, resp).Kind)
}

func TestQueryValidation(t *testing.T) {
	srv := newTestServer(t)

	resp := postQuery(t, srv, "  ", "ask")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postQuery(t, srv, "hi", "translate")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Post(srv.URL+"/query", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestUploadWithoutFiles(t *testing.T) {
	srv := newTestServer(t)
	resp := uploadFiles(t, srv, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestUploadOverCapacity(t *testing.T) {
	srv := newTestServer(t)
	resp := uploadFiles(t, srv, map[string]string{"a.txt": "a", "b.txt": "b"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = uploadFiles(t, srv, map[string]string{"c.txt": "c"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decode[errorResponse](t, resp)
	assert.Equal(t, 2, body.Current)
	assert.Equal(t, 1, body.Attempted)
	assert.Equal(t, 2, body.Limit)
}

func TestDocumentsAndDelete(t *testing.T) {
	srv := newTestServer(t)
	resp := uploadFiles(t, srv, map[string]string{"my notes.txt": "some notes"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/documents")
	require.NoError(t, err)
	docs := decode[documentsResponse](t, resp)
	assert.Equal(t, []string{"my notes.txt"}, docs.Documents)
	assert.Equal(t, 1, docs.Count)

	del := func(name string) int {
		req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/documents/%s", srv.URL, name), nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusNotFound, del("ghost.pdf"))
	assert.Equal(t, http.StatusNoContent, del("my%20notes.txt"))

	resp, err = http.Get(srv.URL + "/documents")
	require.NoError(t, err)
	assert.Equal(t, 0, decode[documentsResponse](t, resp).Count)
}

func TestIngestURL(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body><p>Go was designed at Google.</p></body></html>")
	}))
	defer page.Close()
	srv := newTestServer(t)

	payload, _ := json.Marshal(urlRequest{URL: page.URL + "/about"})
	resp, err := http.Post(srv.URL+"/urls", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[models.FileResult](t, resp)
	assert.Greater(t, res.Chunks, 0)

	resp, err = http.Post(srv.URL+"/urls", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}
