package attachment

import (
	"context"
	"errors"
	"testing"
	"time"

	"broadcastbot/internal/webex"
	"broadcastbot/pkg/logx"
)

type stubFetcher struct {
	notReady int // rounds that report Retry-After before success
	result   webex.FileFetch
	err      error
	calls    int
}

func (s *stubFetcher) FetchFile(_ context.Context, _ string) (*webex.FileFetch, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.calls <= s.notReady {
		return &webex.FileFetch{RetryAfter: 3 * time.Second}, nil
	}
	r := s.result
	return &r, nil
}

func newTestResolver(f Fetcher) (*Resolver, *[]time.Duration) {
	r := NewResolver(f, logx.Nop())
	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return r, &slept
}

func TestResolveRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	for _, k := range []int{0, 1, 4, 9} {
		k := k
		f := &stubFetcher{
			notReady: k,
			result:   webex.FileFetch{Name: "report.pdf", ContentType: "application/pdf", Data: []byte("pdf")},
		}
		r, slept := newTestResolver(f)

		got, err := r.Resolve(context.Background(), "https://files/x")
		if err != nil {
			t.Fatalf("k=%d: Resolve error: %v", k, err)
		}
		if f.calls != k+1 {
			t.Fatalf("k=%d: made %d attempts, want %d", k, f.calls, k+1)
		}
		if len(*slept) != k {
			t.Fatalf("k=%d: slept %d times, want %d", k, len(*slept), k)
		}
		if got.File.Name != "report.pdf" || got.Card != nil {
			t.Fatalf("k=%d: unexpected result %+v", k, got)
		}
	}
}

func TestResolveExhaustion(t *testing.T) {
	t.Parallel()
	f := &stubFetcher{notReady: 1 << 30}
	r, _ := newTestResolver(f)

	_, err := r.Resolve(context.Background(), "https://files/x")
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if f.calls != MaxFetchAttempts {
		t.Fatalf("made %d attempts, want exactly %d", f.calls, MaxFetchAttempts)
	}
}

func TestResolveFetchErrorPropagates(t *testing.T) {
	t.Parallel()
	f := &stubFetcher{err: errors.New("boom")}
	r, _ := newTestResolver(f)

	if _, err := r.Resolve(context.Background(), "u"); err == nil {
		t.Fatal("expected fetch error")
	}
	if f.calls != 1 {
		t.Fatalf("hard errors must not be retried, got %d calls", f.calls)
	}
}

func TestResolveWellFormedJSONBecomesCard(t *testing.T) {
	t.Parallel()
	f := &stubFetcher{result: webex.FileFetch{
		Name:        "form.json",
		ContentType: "application/json",
		Data:        []byte(`{"type":"AdaptiveCard","version":"1.2"}`),
	}}
	r, _ := newTestResolver(f)

	got, err := r.Resolve(context.Background(), "u")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Card == nil {
		t.Fatal("well-formed JSON should produce a card")
	}
	if got.Card.ContentType != webex.AdaptiveCardContentType {
		t.Fatalf("card content type = %q", got.Card.ContentType)
	}
	if len(got.File.Data) == 0 {
		t.Fatal("raw file must stay available for send-time fallback")
	}
}

func TestResolveMalformedJSONStaysFile(t *testing.T) {
	t.Parallel()
	f := &stubFetcher{result: webex.FileFetch{
		Name:        "form.json",
		ContentType: "application/json",
		Data:        []byte(`{"type":`),
	}}
	r, _ := newTestResolver(f)

	got, err := r.Resolve(context.Background(), "u")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Card != nil {
		t.Fatal("malformed JSON must stay a plain file")
	}
}

func TestResolveNonJSONNeverCard(t *testing.T) {
	t.Parallel()
	f := &stubFetcher{result: webex.FileFetch{
		Name:        "a.bin",
		ContentType: "application/octet-stream",
		Data:        []byte{1, 2, 3},
	}}
	r, _ := newTestResolver(f)

	got, err := r.Resolve(context.Background(), "u")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Card != nil {
		t.Fatal("non-JSON content must be sent unmodified")
	}
}
