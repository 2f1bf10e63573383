package analyzer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/adred-dev/warden/internal/domain"
	"github.com/adred-dev/warden/internal/platform"
	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := NewClient(Config{
		Endpoint:       srv.URL,
		APIKey:         "test-key",
		RequestsPerMin: 6000,
		Timeout:        2 * time.Second,
	}, zerolog.Nop())
	return c, srv
}

func sampleBatch() domain.AnalysisBatch {
	return domain.AnalysisBatch{
		GuildID: platform.GuildID(1),
		Messages: []domain.BufferedMessage{
			{MessageID: 1, ChannelID: 10, GuildID: 1, AuthorID: 100, Content: "hello", ReceivedAt: time.Now()},
			{MessageID: 2, ChannelID: 10, GuildID: 1, AuthorID: 101, Content: "world", ReceivedAt: time.Now()},
		},
	}
}

func TestAnalyzeParsesValidViolations(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		resp := analyzeResponse{
			Violations: []wireViolation{
				{MessageID: 1, Reason: "harassment", Severity: 0.8},
			},
		}
		json.NewEncoder(w).Encode(resp)
	})
	defer srv.Close()

	result, err := c.Analyze(context.Background(), sampleBatch())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Violations) != 1 || result.Violations[0].MessageID != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Violations[0].Severity != 0.8 {
		t.Fatalf("expected severity 0.8, got %v", result.Violations[0].Severity)
	}
}

func TestAnalyzeDiscardsUnknownMessageID(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		resp := analyzeResponse{
			Violations: []wireViolation{
				{MessageID: 999, Reason: "x", Severity: 0.5},
			},
		}
		json.NewEncoder(w).Encode(resp)
	})
	defer srv.Close()

	result, err := c.Analyze(context.Background(), sampleBatch())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Violations) != 0 {
		t.Fatalf("expected unknown message_id to be discarded, got %+v", result.Violations)
	}
}

func TestAnalyzeClampsOutOfRangeSeverity(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		resp := analyzeResponse{
			Violations: []wireViolation{
				{MessageID: 1, Reason: "x", Severity: 1.7},
			},
		}
		json.NewEncoder(w).Encode(resp)
	})
	defer srv.Close()

	result, err := c.Analyze(context.Background(), sampleBatch())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Violations) != 1 || result.Violations[0].Severity != 1.0 {
		t.Fatalf("expected severity clamped to 1.0, got %+v", result.Violations)
	}
}

func TestAnalyzeUnauthorizedIsPermanent(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	defer srv.Close()

	_, err := c.Analyze(context.Background(), sampleBatch())
	var perm *PermanentError
	if err == nil {
		t.Fatal("expected an error")
	}
	if !asPermanent(err, &perm) {
		t.Fatalf("expected PermanentError, got %T: %v", err, err)
	}
}

func TestAnalyzeServerErrorIsTransient(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer srv.Close()

	_, err := c.Analyze(context.Background(), sampleBatch())
	var trans *TransientError
	if !asTransient(err, &trans) {
		t.Fatalf("expected TransientError, got %T: %v", err, err)
	}
}

func TestAnalyzeMalformedJSONIsTransient(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})
	defer srv.Close()

	_, err := c.Analyze(context.Background(), sampleBatch())
	var trans *TransientError
	if !asTransient(err, &trans) {
		t.Fatalf("expected TransientError for malformed JSON, got %T: %v", err, err)
	}
}

func TestAnalyzeHonorsOuterCancellation(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(analyzeResponse{})
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.Analyze(ctx, sampleBatch())
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

func asPermanent(err error, target **PermanentError) bool {
	p, ok := err.(*PermanentError)
	if ok {
		*target = p
	}
	return ok
}

func asTransient(err error, target **TransientError) bool {
	tr, ok := err.(*TransientError)
	if ok {
		*target = tr
	}
	return ok
}
