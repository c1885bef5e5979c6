package monobank

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCurrency = `[
  {"currencyCodeA":840,"currencyCodeB":980,"date":1760600000,"rateBuy":41.25,"rateSell":41.7},
  {"currencyCodeA":978,"currencyCodeB":980,"date":1760600000,"rateBuy":48.1,"rateSell":48.85},
  {"currencyCodeA":978,"currencyCodeB":840,"date":1760600000,"rateBuy":1.16,"rateSell":1.17},
  {"currencyCodeA":156,"currencyCodeB":980,"date":1760600000,"rateCross":5.83},
  {"currencyCodeA":985,"currencyCodeB":980,"date":1760600000,"rateCross":11.4}
]`

func newServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path != "/bank/currency" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestClient_Rates(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, sampleCurrency)

	table, err := NewClient(srv.URL + "/").Rates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Pair{Buy: 41.25, Sell: 41.7}, table.USD)
	assert.Equal(t, Pair{Buy: 48.1, Sell: 48.85}, table.EUR)
	assert.Equal(t, Pair{Buy: 5.83, Sell: 5.83}, table.CNY)
}

func TestClient_StatusError(t *testing.T) {
	srv, _ := newServer(t, http.StatusTooManyRequests, `{"errorDescription":"Too many requests"}`)

	_, err := NewClient(srv.URL).Rates(context.Background())
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
	assert.Equal(t, "❌ Monobank API error: 429", se.Error())
}

func TestClient_BadJSON(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `{"not":"an array"}`)

	_, err := NewClient(srv.URL).Rates(context.Background())
	require.Error(t, err)
	var se *StatusError
	assert.False(t, errors.As(err, &se))
}

func TestExtract_MissingRatesAreZero(t *testing.T) {
	table := Extract([]CurrencyInfo{{CurrencyCodeA: CodeUSD, CurrencyCodeB: CodeUAH}})
	assert.Equal(t, Pair{}, table.USD)
}

func TestTable_Format(t *testing.T) {
	table := Table{
		USD: Pair{Buy: 41.25, Sell: 41.7},
		EUR: Pair{Buy: 48.1, Sell: 48.85},
		CNY: Pair{Buy: 5.833, Sell: 5.9},
	}
	want := "💰 *Monobank Currency Rates*\n" +
		"💵 USD: 41.25 / 41.70 ₴\n" +
		"💶 EUR: 48.10 / 48.85 ₴\n" +
		"🇨🇳 CNY: 5.83 / 5.90 ₴\n" +
		"(via api.monobank.ua)"
	assert.Equal(t, want, table.Format())
}

type fakeSource struct {
	mu    sync.Mutex
	calls int
	table Table
	err   error
}

func (f *fakeSource) Rates(context.Context) (Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.table, f.err
}

func TestService_CachesWithinTTL(t *testing.T) {
	src := &fakeSource{table: Table{USD: Pair{Buy: 1, Sell: 2}}}
	svc := NewService(src, 5*time.Minute)
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, outcome, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeFresh, outcome)

	_, outcome, err = svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCached, outcome)
	assert.Equal(t, 1, src.calls)

	now = now.Add(6 * time.Minute)
	_, outcome, err = svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeFresh, outcome)
	assert.Equal(t, 2, src.calls)
}

func TestService_ServesStaleOnFailure(t *testing.T) {
	src := &fakeSource{table: Table{EUR: Pair{Buy: 3, Sell: 4}}}
	svc := NewService(src, time.Minute)
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, _, err := svc.Get(context.Background())
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	src.err = &StatusError{Code: http.StatusTooManyRequests}
	table, outcome, err := svc.Get(context.Background())
	assert.Error(t, err)
	assert.Equal(t, OutcomeStale, outcome)
	assert.Equal(t, Pair{Buy: 3, Sell: 4}, table.EUR)
	assert.Contains(t, svc.Text(context.Background()), "💶 EUR: 3.00 / 4.00 ₴")
}

func TestService_TextErrors(t *testing.T) {
	svc := NewService(&fakeSource{err: &StatusError{Code: http.StatusBadGateway}}, time.Minute)
	assert.Equal(t, "❌ Monobank API error: 502", svc.Text(context.Background()))

	svc = NewService(&fakeSource{err: errors.New("dial tcp: refused")}, time.Minute)
	assert.Equal(t, FailureText, svc.Text(context.Background()))
}

func TestService_ConcurrentGet(t *testing.T) {
	srv, hits := newServer(t, http.StatusOK, sampleCurrency)
	svc := NewService(NewClient(srv.URL), time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.Get(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, atomic.LoadInt32(hits), int32(1))
	_, outcome, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCached, outcome)
}

type blockingSource struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
	ctxErr  atomic.Value
}

func (s *blockingSource) Rates(ctx context.Context) (Table, error) {
	if s.calls.Add(1) == 1 {
		close(s.started)
	}
	<-s.release
	s.ctxErr.Store(fmt.Sprint(ctx.Err()))
	return Table{USD: Pair{Buy: 41, Sell: 42}}, nil
}

func TestService_CancelledCallerDoesNotFailOthers(t *testing.T) {
	src := &blockingSource{started: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(src, time.Minute)

	first, cancel := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, _, err := svc.Get(first)
		firstDone <- err
	}()
	<-src.started

	type result struct {
		table   Table
		outcome Outcome
		err     error
	}
	secondDone := make(chan result, 1)
	go func() {
		tbl, o, err := svc.Get(context.Background())
		secondDone <- result{tbl, o, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstDone, context.Canceled)

	close(src.release)
	second := <-secondDone
	require.NoError(t, second.err)
	assert.Contains(t, []Outcome{OutcomeFresh, OutcomeCached}, second.outcome)
	assert.Equal(t, Pair{Buy: 41, Sell: 42}, second.table.USD)
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, "<nil>", src.ctxErr.Load(), "shared fetch keeps its own context")
}
