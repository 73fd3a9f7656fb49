package transcriber

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestTracedClientDo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-ratelimit-remaining-requests", "41")
		w.Write([]byte(`{"text":"hi"}`))
	}))
	defer srv.Close()

	c := NewTracedClient("")
	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodPost, srv.URL, nil)
		resp, err := c.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		if string(resp.Body) != `{"text":"hi"}` || resp.StatusCode != 200 {
			t.Fatalf("response = %d %q", resp.StatusCode, resp.Body)
		}
		if resp.Header.Get("x-ratelimit-remaining-requests") != "41" {
			t.Error("response header lost")
		}
		m := resp.Metrics
		if m.Total <= 0 || m.Total < m.TTFB {
			t.Errorf("metrics total=%v ttfb=%v", m.Total, m.TTFB)
		}
		if i == 1 && !m.ConnReused {
			t.Error("second request did not reuse the connection")
		}
	}
}

func TestTracedClientWarm(t *testing.T) {
	var heads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			heads.Add(1)
		}
	}))
	defer srv.Close()

	NewTracedClient("").Warm()
	NewTracedClient(srv.URL).Warm()
	if heads.Load() != 1 {
		t.Fatalf("HEAD requests = %d, want 1", heads.Load())
	}
}
