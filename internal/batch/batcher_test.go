package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient records calls and answers batch POSTs via a scriptable handler
type fakeClient struct {
	mu      sync.Mutex
	posts   []Envelope
	postURL []string
	direct  []string

	// postFn overrides the default all-success responder
	postFn func(url string, env Envelope) ([]byte, error)
	// blockPost, when set, is received from before a POST returns
	blockPost chan struct{}
}

func (f *fakeClient) Post(_ context.Context, url string, payload interface{}, _ map[string]string) ([]byte, error) {
	env, ok := payload.(Envelope)
	if !ok {
		return nil, fmt.Errorf("unexpected payload type %T", payload)
	}

	f.mu.Lock()
	f.posts = append(f.posts, env)
	f.postURL = append(f.postURL, url)
	fn := f.postFn
	block := f.blockPost
	f.mu.Unlock()

	if block != nil {
		<-block
	}

	if fn != nil {
		return fn(url, env)
	}
	return okResponse(env)
}

func (f *fakeClient) Request(_ context.Context, endpoint string, _ RequestData) ([]byte, error) {
	f.mu.Lock()
	f.direct = append(f.direct, endpoint)
	f.mu.Unlock()
	return json.RawMessage(`{"direct":true}`), nil
}

func (f *fakeClient) postCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

// okResponse answers every request id with success and its endpoint as data
func okResponse(env Envelope) ([]byte, error) {
	resp := ResponseEnvelope{}
	for _, item := range env.Requests {
		data, _ := json.Marshal(map[string]string{"endpoint": item.Endpoint})
		resp.Responses = append(resp.Responses, ItemResult{ID: item.ID, Success: true, Data: data})
	}
	return json.Marshal(resp)
}

func testRules(maxSize int, timeout time.Duration) []Rule {
	return []Rule{
		{Pattern: "/products/search", BatchEndpoint: "/api/batch/search", MaxSize: maxSize, Timeout: timeout},
		{Pattern: "/products", BatchEndpoint: "/api/batch/products", MaxSize: maxSize, Timeout: timeout},
	}
}

// run fires n concurrent batchable GETs and waits for all outcomes
func run(t *testing.T, b *Batcher, endpoints ...string) []error {
	t.Helper()
	errs := make([]error, len(endpoints))
	var wg sync.WaitGroup
	for i, ep := range endpoints {
		wg.Add(1)
		go func(i int, ep string) {
			defer wg.Done()
			_, err := b.ExecuteWithBatching(context.Background(), ep, RequestData{Method: "GET"})
			errs[i] = err
		}(i, ep)
	}
	wg.Wait()
	return errs
}

func TestExecuteWithBatching_DebounceCoalescesBurst(t *testing.T) {
	client := &fakeClient{}
	b := NewBatcher(client, WithRules(testRules(100, 40*time.Millisecond)))
	defer b.Destroy()

	errs := run(t, b, "/products?id=1", "/products?id=2", "/products?id=3")

	for _, err := range errs {
		assert.NoError(t, err)
	}
	require.Equal(t, 1, client.postCount())
	assert.Len(t, client.posts[0].Requests, 3)
	assert.Equal(t, "/api/batch/products", client.postURL[0])
}

func TestExecuteWithBatching_SizeTriggerDispatchesImmediately(t *testing.T) {
	client := &fakeClient{}
	b := NewBatcher(client, WithRules(testRules(2, 25*time.Millisecond)))
	defer b.Destroy()

	errs := run(t, b, "/products?id=1", "/products?id=2")

	for _, err := range errs {
		assert.NoError(t, err)
	}
	require.Equal(t, 1, client.postCount())
	assert.Len(t, client.posts[0].Requests, 2)

	// the cancelled debounce timer must not fire a second dispatch later
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, client.postCount())
}

func TestExecuteWithBatching_DispatchAtomicity(t *testing.T) {
	client := &fakeClient{blockPost: make(chan struct{})}
	b := NewBatcher(client, WithRules(testRules(2, time.Hour)))
	defer b.Destroy()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := b.ExecuteWithBatching(context.Background(), fmt.Sprintf("/products?id=%d", i), RequestData{Method: "GET"})
			assert.NoError(t, err)
		}(i)
	}

	// wait for the size-triggered dispatch to be in flight
	require.Eventually(t, func() bool { return client.postCount() == 1 }, time.Second, time.Millisecond)

	// a request arriving during the in-flight POST must start a new batch
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := b.ExecuteWithBatching(context.Background(), "/products?id=late", RequestData{Method: "GET"})
		assert.NoError(t, err)
	}()

	require.Eventually(t, func() bool {
		return b.GetStats().TotalPending == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, 1, client.postCount())

	close(client.blockPost)
	b.FlushAll()
	wg.Wait()

	require.Equal(t, 2, client.postCount())
	assert.Len(t, client.posts[0].Requests, 2)
	assert.Len(t, client.posts[1].Requests, 1)
	assert.Equal(t, "/products?id=late", client.posts[1].Requests[0].Endpoint)
}

func TestExecuteWithBatching_TransportFailureRejectsAll(t *testing.T) {
	client := &fakeClient{postFn: func(string, Envelope) ([]byte, error) {
		return nil, errors.New("connection refused")
	}}
	b := NewBatcher(client, WithRules(testRules(4, time.Hour)))
	defer b.Destroy()

	errs := run(t, b, "/products?id=1", "/products?id=2", "/products?id=3", "/products?id=4")

	for _, err := range errs {
		require.Error(t, err)
		assert.Contains(t, err.Error(), "batch dispatch failed")
	}
	assert.Equal(t, 1, client.postCount())
}

func TestExecuteWithBatching_PerItemIndependence(t *testing.T) {
	client := &fakeClient{postFn: func(_ string, env Envelope) ([]byte, error) {
		resp := ResponseEnvelope{}
		for _, item := range env.Requests {
			if item.Endpoint == "/products?id=bad" {
				resp.Responses = append(resp.Responses, ItemResult{
					ID: item.ID, Success: false, Error: "product not found", Status: 404, Code: "NOT_FOUND",
				})
				continue
			}
			resp.Responses = append(resp.Responses, ItemResult{ID: item.ID, Success: true, Data: json.RawMessage(`{"name":"mug"}`)})
		}
		return json.Marshal(resp)
	}}
	b := NewBatcher(client, WithRules(testRules(2, time.Hour)))
	defer b.Destroy()

	type result struct {
		data json.RawMessage
		err  error
	}
	results := make([]result, 2)
	var wg sync.WaitGroup
	for i, ep := range []string{"/products?id=good", "/products?id=bad"} {
		wg.Add(1)
		go func(i int, ep string) {
			defer wg.Done()
			data, err := b.ExecuteWithBatching(context.Background(), ep, RequestData{Method: "GET"})
			results[i] = result{data, err}
		}(i, ep)
	}
	wg.Wait()

	assert.NoError(t, results[0].err)
	assert.JSONEq(t, `{"name":"mug"}`, string(results[0].data))

	require.Error(t, results[1].err)
	var itemErr *ItemError
	require.ErrorAs(t, results[1].err, &itemErr)
	assert.Equal(t, 404, itemErr.Status)
	assert.Equal(t, "NOT_FOUND", itemErr.Code)
}

func TestExecuteWithBatching_MissingResponseID(t *testing.T) {
	client := &fakeClient{postFn: func(_ string, env Envelope) ([]byte, error) {
		// answer only the first request
		resp := ResponseEnvelope{Responses: []ItemResult{
			{ID: env.Requests[0].ID, Success: true, Data: json.RawMessage(`{}`)},
		}}
		return json.Marshal(resp)
	}}
	b := NewBatcher(client, WithRules(testRules(2, time.Hour)))
	defer b.Destroy()

	errs := run(t, b, "/products?id=1", "/products?id=2")

	var withErr, withoutErr int
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrNoResponse)
			withErr++
		} else {
			withoutErr++
		}
	}
	assert.Equal(t, 1, withErr)
	assert.Equal(t, 1, withoutErr)
}

func TestClear_RejectsWithoutSending(t *testing.T) {
	client := &fakeClient{}
	b := NewBatcher(client, WithRules(testRules(100, time.Hour)))
	defer b.Destroy()

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := b.ExecuteWithBatching(context.Background(), fmt.Sprintf("/products?id=%d", i), RequestData{Method: "GET"})
			errs[i] = err
		}(i)
	}

	require.Eventually(t, func() bool { return b.GetStats().TotalPending == 2 }, time.Second, time.Millisecond)
	b.Clear()
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, ErrBatchCleared)
	}
	assert.Equal(t, 0, client.postCount())
	assert.Equal(t, 0, b.GetStats().ActiveBatches)
}

func TestFlushAll_DispatchesPendingBatches(t *testing.T) {
	client := &fakeClient{}
	b := NewBatcher(client, WithRules(testRules(100, time.Hour)))
	defer b.Destroy()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := b.ExecuteWithBatching(context.Background(), fmt.Sprintf("/products?id=%d", i), RequestData{Method: "GET"})
			assert.NoError(t, err)
		}(i)
	}

	require.Eventually(t, func() bool { return b.GetStats().TotalPending == 2 }, time.Second, time.Millisecond)
	b.FlushAll()
	wg.Wait()

	require.Equal(t, 1, client.postCount())
	assert.Len(t, client.posts[0].Requests, 2)
}

func TestExecuteWithBatching_NonGETBypassesBatching(t *testing.T) {
	client := &fakeClient{}
	b := NewBatcher(client, WithRules(testRules(10, time.Hour)))
	defer b.Destroy()

	_, err := b.ExecuteWithBatching(context.Background(), "/products", RequestData{Method: "POST", Body: json.RawMessage(`{"name":"mug"}`)})

	require.NoError(t, err)
	assert.Equal(t, []string{"/products"}, client.direct)
	assert.Equal(t, 0, client.postCount())
}

func TestExecuteWithBatching_UnmatchedEndpointBypassesBatching(t *testing.T) {
	client := &fakeClient{}
	b := NewBatcher(client, WithRules(testRules(10, time.Hour)))
	defer b.Destroy()

	_, err := b.ExecuteWithBatching(context.Background(), "/cart", RequestData{Method: "GET"})

	require.NoError(t, err)
	assert.Equal(t, []string{"/cart"}, client.direct)
}

func TestEnqueue_NotBatchableIsContractViolation(t *testing.T) {
	b := NewBatcher(&fakeClient{}, WithRules(testRules(10, time.Hour)))
	defer b.Destroy()

	_, err := b.enqueue("/cart", RequestData{Method: "GET"})

	assert.ErrorIs(t, err, ErrNotBatchable)
}

func TestRuleMatching_FirstPatternWins(t *testing.T) {
	client := &fakeClient{}
	b := NewBatcher(client, WithRules(testRules(1, time.Hour)))
	defer b.Destroy()

	errs := run(t, b, "/products/search?q=mug")

	require.NoError(t, errs[0])
	require.Equal(t, 1, client.postCount())
	// "/products/search" is listed before "/products", so it wins even
	// though both patterns match
	assert.Equal(t, "/api/batch/search", client.postURL[0])
}

func TestDispatch_RequestIDsAreUnique(t *testing.T) {
	client := &fakeClient{}
	b := NewBatcher(client, WithRules(testRules(5, time.Hour)))
	defer b.Destroy()

	run(t, b, "/products?id=1", "/products?id=2", "/products?id=3", "/products?id=4", "/products?id=5")

	require.Equal(t, 1, client.postCount())
	seen := make(map[string]bool)
	for _, item := range client.posts[0].Requests {
		assert.NotEmpty(t, item.ID)
		assert.False(t, seen[item.ID], "duplicate request id %s", item.ID)
		seen[item.ID] = true
	}
}

func TestGetStats_ReflectsPendingBatches(t *testing.T) {
	client := &fakeClient{}
	b := NewBatcher(client, WithRules(testRules(100, time.Hour)))
	defer b.Destroy()

	var wg sync.WaitGroup
	for _, ep := range []string{"/products?id=1", "/products?id=2", "/products/search?q=a"} {
		wg.Add(1)
		go func(ep string) {
			defer wg.Done()
			b.ExecuteWithBatching(context.Background(), ep, RequestData{Method: "GET"})
		}(ep)
	}

	require.Eventually(t, func() bool { return b.GetStats().TotalPending == 3 }, time.Second, time.Millisecond)

	stats := b.GetStats()
	assert.Equal(t, 2, stats.ActiveBatches)
	assert.Equal(t, 3, stats.TotalPending)
	assert.Equal(t, 1, stats.SizeHistogram[1])
	assert.Equal(t, 1, stats.SizeHistogram[2])
	assert.InDelta(t, 1.5, stats.AverageSize, 0.001)
	assert.Greater(t, stats.OldestBatchAge, time.Duration(0))

	b.Clear()
	wg.Wait()
	empty := b.GetStats()
	assert.Equal(t, 0, empty.ActiveBatches)
	assert.Equal(t, 0, empty.TotalPending)
}

func TestDestroy_RejectsLaterSubmissions(t *testing.T) {
	b := NewBatcher(&fakeClient{}, WithRules(testRules(10, time.Hour)))

	b.Destroy()

	_, err := b.ExecuteWithBatching(context.Background(), "/products", RequestData{Method: "GET"})
	assert.ErrorIs(t, err, ErrDestroyed)
}
