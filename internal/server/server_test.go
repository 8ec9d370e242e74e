package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/playlistbot/internal/bot"
	"github.com/desertthunder/playlistbot/internal/models"
	"github.com/desertthunder/playlistbot/internal/shared"
	"golang.org/x/oauth2"
)

type stubBot struct {
	reply   bot.Reply
	handled bool
	got     []bot.Event
}

func (s *stubBot) HandleEvent(_ context.Context, ev bot.Event) (bot.Reply, bool) {
	s.got = append(s.got, ev)
	return s.reply, s.handled
}

type stubShares struct {
	records []*models.ShareRecord
	err     error
	limit   int
}

func (s *stubShares) Recent(_ context.Context, limit int) ([]*models.ShareRecord, error) {
	s.limit = limit
	return s.records, s.err
}

func newTestRouter(b EventHandler, shares ShareLister, token string) http.Handler {
	return NewWebhookRouter(WebhookOpts{Bot: b, Shares: shares, Token: token, Logger: shared.NewLogger(&bytes.Buffer{})})
}

func TestEventsHandler(t *testing.T) {
	t.Run("handled event returns reply", func(t *testing.T) {
		b := &stubBot{handled: true, reply: bot.Reply{RequestID: "r1", Text: `Track "X" added to "P"`, Outcome: models.OutcomeAdded}}
		router := newTestRouter(b, nil, "")

		body := `{"channel":"music","author":"sam","content":"https://open.spotify.com/track/x"}`
		req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var reply bot.Reply
		if err := json.NewDecoder(rec.Body).Decode(&reply); err != nil {
			t.Fatalf("failed to decode reply: %v", err)
		}
		if reply.Text != b.reply.Text || reply.Outcome != models.OutcomeAdded {
			t.Errorf("unexpected reply %+v", reply)
		}
		if len(b.got) != 1 || b.got[0].Author != "sam" {
			t.Errorf("unexpected events %+v", b.got)
		}
		if rec.Header().Get(RequestIDHeader) == "" {
			t.Error("expected a request id header")
		}
	})

	t.Run("ignored event", func(t *testing.T) {
		router := newTestRouter(&stubBot{}, nil, "")
		req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(`{"channel":"general","content":"hi"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", rec.Code)
		}
	})

	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"invalid json", http.MethodPost, `{`, http.StatusBadRequest},
		{"missing channel", http.MethodPost, `{"content":"x"}`, http.StatusBadRequest},
		{"too large", http.MethodPost, `{"channel":"music","content":"` + strings.Repeat("a", maxEventBytes) + `"}`, http.StatusRequestEntityTooLarge},
		{"wrong method", http.MethodGet, ``, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&stubBot{handled: true}, nil, "")
			req := httptest.NewRequest(tt.method, "/events", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	router := newTestRouter(&stubBot{}, nil, "s3cret")

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", "Basic s3cret", http.StatusUnauthorized},
		{"valid", "Bearer s3cret", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(`{"channel":"music","content":"hi"}`))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}

	t.Run("health skips token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})
}

func TestSharesHandler(t *testing.T) {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("lists records", func(t *testing.T) {
		shares := &stubShares{records: []*models.ShareRecord{{
			ID: "s1", Channel: "music", Kind: models.KindTrack, AssetID: "t1",
			DisplayName: "Song", Outcome: models.OutcomeAdded, Added: 1, Candidates: 1, CreatedAt: created,
		}}}
		router := newTestRouter(&stubBot{}, shares, "")

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/shares?limit=5", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if shares.limit != 5 {
			t.Errorf("expected limit 5, got %d", shares.limit)
		}

		var body struct {
			Shares []shareView `json:"shares"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if len(body.Shares) != 1 || body.Shares[0].DisplayName != "Song" || body.Shares[0].CreatedAt != "2025-03-01T10:00:00Z" {
			t.Errorf("unexpected body %+v", body)
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		router := newTestRouter(&stubBot{}, &stubShares{}, "")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/shares?limit=abc", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		router := newTestRouter(&stubBot{}, &stubShares{err: errors.New("db gone")}, "")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/shares", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
	})

	t.Run("not registered without store", func(t *testing.T) {
		router := newTestRouter(&stubBot{}, nil, "")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/shares", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("request id propagates", func(t *testing.T) {
		var seen string
		h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = RequestIDFrom(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if seen != "abc-123" || rec.Header().Get(RequestIDHeader) != "abc-123" {
			t.Errorf("expected abc-123, got context=%q header=%q", seen, rec.Header().Get(RequestIDHeader))
		}
	})

	t.Run("logging records status", func(t *testing.T) {
		var buf bytes.Buffer
		h := Logging(shared.NewLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/brew", nil))

		if !strings.Contains(buf.String(), "418") || !strings.Contains(buf.String(), "/brew") {
			t.Errorf("expected status and path in log, got %q", buf.String())
		}
	})

	t.Run("recover", func(t *testing.T) {
		h := Recover(shared.NewLogger(&bytes.Buffer{}))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
	})

	t.Run("middleware order", func(t *testing.T) {
		var order []string
		mark := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}
		r := NewBasicRouter()
		r.Use(mark("first"), mark("second"))
		r.Handle("get", "/x", http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "handler") }))
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

		if strings.Join(order, ",") != "first,second,handler" {
			t.Errorf("unexpected order %v", order)
		}
	})
}

type fakeExchanger struct {
	token *oauth2.Token
	err   error
}

func (f *fakeExchanger) Exchange(context.Context, string, ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	return f.token, f.err
}

func TestOAuthHandler(t *testing.T) {
	t.Run("exchanges code", func(t *testing.T) {
		h := NewOAuthHandler(&fakeExchanger{token: &oauth2.Token{AccessToken: "at", RefreshToken: "rt"}}, "st")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=st&code=c", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		res := <-h.Result()
		if res.Error() != nil || res.Token.RefreshToken != "rt" {
			t.Errorf("unexpected result %+v", res)
		}

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=st&code=c", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected second callback to be rejected, got %d", rec.Code)
		}
	})

	tests := []struct {
		name  string
		query string
		ex    *fakeExchanger
		want  int
	}{
		{"bad state", "state=other&code=c", &fakeExchanger{}, http.StatusBadRequest},
		{"denied", "state=st&error=access_denied", &fakeExchanger{}, http.StatusBadRequest},
		{"exchange failure", "state=st&code=c", &fakeExchanger{err: errors.New("nope")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewOAuthHandler(tt.ex, "st")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?"+tt.query, nil))
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
			if res := <-h.Result(); res.Error() == nil {
				t.Error("expected an error result")
			}
		})
	}
}

func TestServerRun(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	srv := NewServer("127.0.0.1", 0, HealthHandler(), shared.NewLogger(&bytes.Buffer{}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
