package auth

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Alcereo/edgegate/pkg/backend"
	"github.com/Alcereo/edgegate/pkg/cache"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const sessionToken = "tok_1234567890abcdef"

type stubReply struct {
	status int
	body   string
}

type recordedCall struct {
	method        string
	path          string
	authorization string
	body          map[string]interface{}
}

type stubBackend struct {
	mu      sync.Mutex
	replies map[string]stubReply
	calls   []recordedCall
	server  *httptest.Server
}

func newStubBackend(t *testing.T, replies map[string]stubReply) *stubBackend {
	stub := &stubBackend{replies: replies}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		_ = json.Unmarshal(raw, &body)

		stub.mu.Lock()
		stub.calls = append(stub.calls, recordedCall{
			method:        r.Method,
			path:          r.URL.Path,
			authorization: r.Header.Get("Authorization"),
			body:          body,
		})
		reply, found := stub.replies[r.URL.Path]
		stub.mu.Unlock()

		if !found {
			reply = stubReply{status: http.StatusNotFound, body: `{"detail":"Not Found"}`}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(reply.status)
		_, _ = w.Write([]byte(reply.body))
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func (stub *stubBackend) client(t *testing.T) *backend.Client {
	client, err := backend.NewClient(stub.server.URL+"/v1", 5*time.Second)
	require.NoError(t, err)
	return client
}

func (stub *stubBackend) recorded() []recordedCall {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	return append([]recordedCall(nil), stub.calls...)
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

func cookieByName(cookies []*http.Cookie, name string) *http.Cookie {
	for _, cookie := range cookies {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}
