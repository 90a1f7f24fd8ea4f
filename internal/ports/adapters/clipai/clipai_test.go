package clipai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeTestMedia(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "window.mp4")
	if err := os.WriteFile(path, []byte("not really video"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAnalyzeWindow_UploadsAndParses(t *testing.T) {
	var gotAuth, gotModel, gotMaxClips, gotLanguage, gotFile string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotModel = r.FormValue("model")
		gotMaxClips = r.FormValue("max_clips")
		gotLanguage = r.FormValue("language")
		if _, hdr, err := r.FormFile("media"); err == nil {
			gotFile = hdr.Filename
		}
		w.Write([]byte(`{"clips":[
			{"start_time":10,"end_time":55,"title":"The reveal","description":"d",
			 "captions":[{"start":0,"end":2,"text":"hello"},{"start":2,"end":1.5,"text":"bad"}]},
			{"start_time":80,"end_time":80,"title":"degenerate"},
			{"start_time":120,"end_time":170,"title":"Second"}
		]}`))
	}))
	defer srv.Close()

	a := New("sk-test", "", srv.URL, zerolog.Nop())
	got, err := a.AnalyzeWindow(context.Background(), writeTestMedia(t), 5, 15*time.Second, 90*time.Second, "en")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if gotAuth != "Bearer sk-test" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotModel != defaultModel || gotMaxClips != "5" || gotLanguage != "en" || gotFile != "window.mp4" {
		t.Fatalf("form fields: model=%q max=%q lang=%q file=%q", gotModel, gotMaxClips, gotLanguage, gotFile)
	}

	if len(got) != 2 {
		t.Fatalf("expected degenerate clip dropped, got %+v", got)
	}
	if got[0].Title != "The reveal" || got[0].Start != 10 || got[0].End != 55 {
		t.Fatalf("unexpected first clip: %+v", got[0])
	}
	// The inverted caption segment is dropped, the valid one kept.
	if len(got[0].Captions) != 1 || got[0].Captions[0].Text != "hello" {
		t.Fatalf("unexpected captions: %+v", got[0].Captions)
	}
}

func TestAnalyzeWindow_RetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"clips":[{"start_time":0,"end_time":30,"title":"ok"}]}`))
	}))
	defer srv.Close()

	a := New("k", "", srv.URL, zerolog.Nop())
	got, err := a.AnalyzeWindow(context.Background(), writeTestMedia(t), 3, 0, 0, "")
	if err != nil {
		t.Fatalf("expected recovery on third attempt: %v", err)
	}
	if calls != 3 || len(got) != 1 {
		t.Fatalf("calls=%d clips=%+v", calls, got)
	}
}

func TestAnalyzeWindow_ClientErrorIsFinal(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad request: key sk-secret rejected", http.StatusBadRequest)
	}))
	defer srv.Close()

	a := New("sk-secret", "", srv.URL, zerolog.Nop())
	_, err := a.AnalyzeWindow(context.Background(), writeTestMedia(t), 3, 0, 0, "")
	if err == nil || calls != 1 {
		t.Fatalf("expected a single failed attempt, calls=%d err=%v", calls, err)
	}
	if !strings.Contains(err.Error(), "status 400") {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(err.Error(), "sk-secret") {
		t.Fatalf("API key leaked into error: %v", err)
	}
}

func TestParseClips_NotAnArray(t *testing.T) {
	if got := parseClips([]byte(`{"clips":"nope"}`)); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
	if got := parseClips([]byte(`garbage`)); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}
