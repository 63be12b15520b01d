package fetchers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Alcereo/edgegate/pkg/backend"
	"github.com/Alcereo/edgegate/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	aliceToken = "tok_alice_1234567890"
	bobToken   = "tok_bob_12345678901"
	meBody     = `{"id":"u1","email":"a@example.com","role":"admin","group":"default","balance":12.5,"orgId":"o1","createdAt":"2024-01-01","lastLoginAt":null}`
)

type stubBackend struct {
	server *httptest.Server
	calls  int32
	status int
	body   string
	auth   []string
	mu     sync.Mutex
	delay  chan struct{}
}

func newStubBackend(t *testing.T, status int, body string) *stubBackend {
	stub := &stubBackend{status: status, body: body}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&stub.calls, 1)
		stub.mu.Lock()
		stub.auth = append(stub.auth, r.Header.Get("Authorization"))
		delay := stub.delay
		stub.mu.Unlock()
		if delay != nil {
			<-delay
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(stub.status)
		_, _ = w.Write([]byte(stub.body))
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func (stub *stubBackend) client(t *testing.T) *backend.Client {
	client, err := backend.NewClient(stub.server.URL, 5*time.Second)
	require.NoError(t, err)
	return client
}

func (stub *stubBackend) callCount() int {
	return int(atomic.LoadInt32(&stub.calls))
}

func TestFetchCurrentUser(t *testing.T) {
	stub := newStubBackend(t, http.StatusOK, meBody)
	fetcher := NewCurrentUserFetcher(stub.client(t), cache.NewGoCacheTagStore(time.Minute, time.Minute))

	user := fetcher.Fetch(context.Background(), aliceToken)

	require.NotNil(t, user)
	assert.Equal(t, "u1", user.Id)
	assert.Equal(t, "admin", user.Role)
	assert.Equal(t, 12.5, user.Balance)
	assert.Nil(t, user.LastLoginAt)
	assert.True(t, user.IsAdmin())
	assert.Equal(t, []string{"Bearer " + aliceToken}, stub.auth)
}

func TestFetchShortTokenSkipsBackend(t *testing.T) {
	stub := newStubBackend(t, http.StatusOK, meBody)
	fetcher := NewCurrentUserFetcher(stub.client(t), nil)

	assert.Nil(t, fetcher.Fetch(context.Background(), ""))
	assert.Nil(t, fetcher.Fetch(context.Background(), "short"))
	assert.Equal(t, 0, stub.callCount())
}

func TestFetchFailuresYieldNil(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"non-2xx", http.StatusUnauthorized, `{"detail":"Invalid token"}`},
		{"missing field", http.StatusOK, `{"id":"u1","email":"a@example.com"}`},
		{"wrong type", http.StatusOK, `{"id":"u1","email":"a@example.com","role":"user","group":"g","balance":"1","orgId":"o","createdAt":"c","lastLoginAt":null}`},
		{"not json", http.StatusOK, `nope`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := newStubBackend(t, tc.status, tc.body)
			fetcher := NewCurrentUserFetcher(stub.client(t), nil)
			assert.Nil(t, fetcher.Fetch(context.Background(), aliceToken))
		})
	}
}

func TestFetchUnreachableYieldsNil(t *testing.T) {
	client, err := backend.NewClient("http://127.0.0.1:1", time.Second)
	require.NoError(t, err)
	fetcher := NewCurrentUserFetcher(client, nil)

	assert.Nil(t, fetcher.Fetch(context.Background(), aliceToken))
}

func TestFetchMemoizedWithinRequest(t *testing.T) {
	stub := newStubBackend(t, http.StatusOK, meBody)
	fetcher := NewCurrentUserFetcher(stub.client(t), nil)
	ctx := WithMemo(context.Background())

	first := fetcher.Fetch(ctx, aliceToken)
	second := fetcher.Fetch(ctx, aliceToken)

	assert.Same(t, first, second)
	assert.Equal(t, 1, stub.callCount())

	fetcher.Fetch(WithMemo(context.Background()), aliceToken)
	assert.Equal(t, 2, stub.callCount(), "a new request without a tag cache reads again")
}

func TestFetchCachedUntilInvalidated(t *testing.T) {
	stub := newStubBackend(t, http.StatusOK, meBody)
	store := cache.NewGoCacheTagStore(time.Minute, time.Minute)
	fetcher := NewCurrentUserFetcher(stub.client(t), store)

	fetcher.Fetch(context.Background(), aliceToken)
	fetcher.Fetch(context.Background(), aliceToken)
	assert.Equal(t, 1, stub.callCount())

	fetcher.Fetch(context.Background(), bobToken)
	assert.Equal(t, 2, stub.callCount(), "tokens never share entries")

	require.NoError(t, store.Invalidate(cache.TagCurrentUser))
	fetcher.Fetch(context.Background(), aliceToken)
	assert.Equal(t, 3, stub.callCount())
}

func TestFetchDoesNotCacheFailures(t *testing.T) {
	stub := newStubBackend(t, http.StatusServiceUnavailable, `{"detail":"down"}`)
	store := cache.NewGoCacheTagStore(time.Minute, time.Minute)
	fetcher := NewCurrentUserFetcher(stub.client(t), store)

	assert.Nil(t, fetcher.Fetch(context.Background(), aliceToken))
	assert.Nil(t, fetcher.Fetch(context.Background(), aliceToken))
	assert.Equal(t, 2, stub.callCount())
}

func TestConcurrentMissesShareOneCall(t *testing.T) {
	stub := newStubBackend(t, http.StatusOK, meBody)
	stub.mu.Lock()
	stub.delay = make(chan struct{})
	stub.mu.Unlock()
	fetcher := NewCurrentUserFetcher(stub.client(t), cache.NewGoCacheTagStore(time.Minute, time.Minute))

	var wg sync.WaitGroup
	results := make([]bool, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = fetcher.Fetch(context.Background(), aliceToken) != nil
		}(i)
	}
	time.Sleep(100 * time.Millisecond)
	close(stub.delay)
	wg.Wait()

	assert.Equal(t, 1, stub.callCount())
	for _, ok := range results {
		assert.True(t, ok)
	}
}

func TestFetchAuthMethods(t *testing.T) {
	stub := newStubBackend(t, http.StatusOK,
		`{"passwordSet":true,"oauth":[{"id":"m1","provider":"google","email":"a@example.com","createdAt":"2024-01-01"}]}`)
	fetcher := NewAuthMethodsFetcher(stub.client(t), nil)

	methods := fetcher.Fetch(context.Background(), aliceToken)

	require.NotNil(t, methods)
	assert.True(t, methods.PasswordSet)
	require.Len(t, methods.OAuth, 1)
	assert.Equal(t, "google", methods.OAuth[0].Provider)
	assert.Equal(t, cache.TagAuthMethods, fetcher.Tag())
}

func TestShapeChecks(t *testing.T) {
	assert.False(t, IsAuthMethods(map[string]interface{}{"passwordSet": true}))
	assert.False(t, IsAuthMethods(map[string]interface{}{
		"passwordSet": false,
		"oauth":       []interface{}{map[string]interface{}{"provider": "google"}},
	}))
	assert.True(t, IsAuthMethods(map[string]interface{}{"passwordSet": false, "oauth": []interface{}{}}))

	assert.False(t, IsAuthMethods(map[string]interface{}{
		"passwordSet": true,
		"oauth": []interface{}{
			map[string]interface{}{"provider": "google", "email": "a@example.com", "createdAt": "c"},
		},
	}), "a linked method without id cannot be unlinked")
	assert.True(t, IsAuthMethods(map[string]interface{}{
		"passwordSet": true,
		"oauth": []interface{}{
			map[string]interface{}{"id": "m1", "provider": "google", "email": "a@example.com", "createdAt": "c"},
		},
	}))
	assert.False(t, IsCurrentUser([]interface{}{}))
}

func TestCancelledLeaderDoesNotFailFollowers(t *testing.T) {
	stub := newStubBackend(t, http.StatusOK, meBody)
	stub.mu.Lock()
	stub.delay = make(chan struct{})
	stub.mu.Unlock()
	fetcher := NewCurrentUserFetcher(stub.client(t), cache.NewGoCacheTagStore(time.Minute, time.Minute))

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderDone := make(chan struct{})
	go func() {
		defer close(leaderDone)
		fetcher.Fetch(leaderCtx, aliceToken)
	}()
	require.Eventually(t, func() bool { return stub.callCount() == 1 }, time.Second, 5*time.Millisecond)

	follower := make(chan bool, 1)
	go func() {
		follower <- fetcher.Fetch(context.Background(), aliceToken) != nil
	}()
	time.Sleep(50 * time.Millisecond)

	cancelLeader()
	time.Sleep(20 * time.Millisecond)
	close(stub.delay)

	select {
	case ok := <-follower:
		assert.True(t, ok, "a live caller gets the shared result")
	case <-time.After(2 * time.Second):
		t.Fatal("follower did not return")
	}
	<-leaderDone
	assert.Equal(t, 1, stub.callCount())
}
