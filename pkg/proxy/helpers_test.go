package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/Alcereo/edgegate/pkg/backend"
	"github.com/Alcereo/edgegate/pkg/cache"
	"github.com/Alcereo/edgegate/pkg/common"
	"github.com/Alcereo/edgegate/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const sessionToken = "tok_1234567890abcdef"

type backendHit struct {
	method string
	uri    string
	header http.Header
	body   string
}

type stubBackend struct {
	mu          sync.Mutex
	hits        []backendHit
	status      int
	contentType string
	body        string
	server      *httptest.Server
}

func newStubBackend(t *testing.T, status int, contentType string, body string) *stubBackend {
	stub := &stubBackend{status: status, contentType: contentType, body: body}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		stub.mu.Lock()
		stub.hits = append(stub.hits, backendHit{method: r.Method, uri: r.URL.RequestURI(), header: r.Header.Clone(), body: string(raw)})
		stub.mu.Unlock()
		if stub.contentType != "" {
			w.Header().Set("Content-Type", stub.contentType)
		}
		w.WriteHeader(stub.status)
		_, _ = w.Write([]byte(stub.body))
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func (stub *stubBackend) client(t *testing.T) *backend.Client {
	client, err := backend.NewClient(stub.server.URL+"/v1", 5*time.Second)
	require.NoError(t, err)
	return client
}

func (stub *stubBackend) lastHit(t *testing.T) backendHit {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	require.NotEmpty(t, stub.hits)
	return stub.hits[len(stub.hits)-1]
}

func (stub *stubBackend) hitCount() int {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	return len(stub.hits)
}

func (stub *stubBackend) targetUrl(t *testing.T) url.URL {
	target, err := url.Parse(stub.server.URL + "/v1")
	require.NoError(t, err)
	return *target
}

type recordingInvalidator struct {
	mu   sync.Mutex
	tags []cache.Tag
}

func (r *recordingInvalidator) Invalidate(tags ...cache.Tag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags = append(r.tags, tags...)
	return nil
}

func (r *recordingInvalidator) invalidated() []cache.Tag {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]cache.Tag(nil), r.tags...)
}

func testLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func newForwarder(t *testing.T, stub *stubBackend) *Forwarder {
	return NewForwarder(stub.client(t), session.NewCodec(""))
}

// serve mounts handler on a chi router so URL params resolve as in the server.
func serve(pattern string, method string, handler common.RequestHandler, request *http.Request) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Method(method, pattern, common.Adapt(handler))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}
