package listsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailflow/internal/pkg/httpretry"
	"github.com/ignite/mailflow/internal/pkg/ratelimit"
)

func testLimiter() *ratelimit.Limiter {
	return ratelimit.New(ratelimit.Config{
		Window: 10 * time.Millisecond, MaxStarts: 100, MaxConcurrent: 10,
	})
}

func newTestClient(baseURL string, pageSize int) *Client {
	return NewClient(ClientConfig{
		BaseURL:  baseURL,
		APIKey:   "key-123",
		ListID:   "list-1",
		PageSize: pageSize,
		Timeout:  5 * time.Second,
	}, testLimiter())
}

func memberPage(members []memberJSON, total int) []byte {
	b, _ := json.Marshal(memberListResponse{Members: members, TotalItems: total})
	return b
}

func TestListMembersPaging(t *testing.T) {
	pages := map[string][]memberJSON{
		"0": {
			{EmailAddress: "A@Example.com", Status: "subscribed", MergeFields: map[string]string{"NAME": "Alice"}},
			{EmailAddress: "b@example.com", Status: "unsubscribed"},
		},
		"2": {
			{EmailAddress: "c@example.com", Status: "cleaned", TimestampOpt: "2026-03-01T10:00:00Z"},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key-123", r.Header.Get("Authorization"))
		assert.Equal(t, "/lists/list-1/members", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("count"))

		offset := r.URL.Query().Get("offset")
		w.Write(memberPage(pages[offset], 3))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 2)
	members, err := c.ListMembers(context.Background())
	require.NoError(t, err)
	require.Len(t, members, 3)

	assert.Equal(t, "a@example.com", members[0].Email)
	assert.Equal(t, "Alice", members[0].Name)
	assert.Equal(t, RemoteSubscribed, members[0].Status)

	assert.Equal(t, RemoteUnsubscribed, members[1].Status)

	// Non-unsubscribed platform states all count as subscribed.
	assert.Equal(t, RemoteSubscribed, members[2].Status)
	assert.Equal(t, 2026, members[2].SignupAt.Year())
}

func TestListMembersUnknownList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 10)
	_, err := c.ListMembers(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestListMembersServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(apiError{Title: "Forbidden", Status: 403, Detail: "bad key"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 10)
	_, err := c.ListMembers(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Forbidden")
}

func TestPushUnsubscribePatchesByEmailHash(t *testing.T) {
	var gotPath, gotStatus string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		gotPath = r.URL.Path

		var patch memberPatch
		require.NoError(t, json.NewDecoder(r.Body).Decode(&patch))
		gotStatus = patch.Status
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 10)
	require.NoError(t, c.PushUnsubscribe(context.Background(), "User@Example.com"))

	// Member key is the MD5 of the lower-cased address.
	assert.Equal(t, "/lists/list-1/members/"+emailHash("user@example.com"), gotPath)
	assert.Equal(t, "unsubscribed", gotStatus)
}

func TestPushUnsubscribeCreatesMissingMember(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch r.Method {
		case http.MethodPatch:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{}`))
		case http.MethodPost:
			var create memberPatch
			require.NoError(t, json.NewDecoder(r.Body).Decode(&create))
			assert.Equal(t, "ghost@example.com", create.EmailAddress)
			assert.Equal(t, "unsubscribed", create.Status)
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 10)
	require.NoError(t, c.PushUnsubscribe(context.Background(), "ghost@example.com"))

	require.Len(t, calls, 2)
	assert.Equal(t, "POST /lists/list-1/members", calls[1])
}

func TestRetriesConsumeLimiterBudget(t *testing.T) {
	// A budget of one start per window must pace retried attempts too: the
	// first two attempts 500 and the recovery attempt may only begin once
	// each previous start has left the window.
	const window = 40 * time.Millisecond

	var mu sync.Mutex
	var starts []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		starts = append(starts, time.Now())
		n := len(starts)
		mu.Unlock()

		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write(memberPage(nil, 0))
	}))
	defer srv.Close()

	limiter := ratelimit.New(ratelimit.Config{
		Window: window, MaxStarts: 1, MaxConcurrent: 3,
	})
	c := NewClient(ClientConfig{
		BaseURL: srv.URL, APIKey: "k", ListID: "list-1", PageSize: 10,
		Timeout: 5 * time.Second,
		Retry:   httpretry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2},
	}, limiter)

	_, err := c.ListMembers(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, starts, 3)
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		assert.GreaterOrEqual(t, gap, window-10*time.Millisecond,
			"attempt %d started %s after the previous one", i+1, gap)
	}
}

func TestRequestsGoThroughLimiter(t *testing.T) {
	// With a one-at-a-time limiter, overlapping requests would fail the
	// handler's concurrency check.
	var inFlight, peak int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		time.Sleep(5 * time.Millisecond)
		inFlight--

		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		if offset >= 4 {
			w.Write(memberPage(nil, 4))
			return
		}
		w.Write(memberPage([]memberJSON{
			{EmailAddress: fmt.Sprintf("u%d@example.com", offset), Status: "subscribed"},
		}, 4))
	}))
	defer srv.Close()

	limiter := ratelimit.New(ratelimit.Config{
		Window: time.Millisecond, MaxStarts: 100, MaxConcurrent: 1,
	})
	c := NewClient(ClientConfig{
		BaseURL: srv.URL, APIKey: "k", ListID: "list-1", PageSize: 1, Timeout: 5 * time.Second,
	}, limiter)

	members, err := c.ListMembers(context.Background())
	require.NoError(t, err)
	assert.Len(t, members, 4)
	assert.Equal(t, 1, peak)
}
