package target

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"scorm-bridge/internal/domain"
)

// testServer fakes the Target API: token endpoint plus whatever the test
// registers on mux. tokenHits counts client-credentials requests.
func testServer(t *testing.T, mux *http.ServeMux, tokenHits *int) *httptest.Server {
	t.Helper()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		*tokenHits++
		wantBasic := "Basic " + base64.StdEncoding.EncodeToString([]byte("pub:priv"))
		if got := r.Header.Get("Authorization"); got != wantBasic {
			t.Errorf("token auth header = %q", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %q", got)
		}
		fmt.Fprint(w, `{"access_token":"tok-1","expires_in":3600}`)
	})
	return httptest.NewServer(mux)
}

func TestCreateCourse(t *testing.T) {
	var got courseCreateRequest
	var tokenHits int
	mux := http.NewServeMux()
	mux.HandleFunc("/courses", func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer tok-1" {
			t.Errorf("auth header = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		fmt.Fprint(w, `{"id":41}`)
	})
	srv := testServer(t, mux, &tokenHits)
	defer srv.Close()

	c := New(srv.URL, "pub", "priv", 3)
	id, err := c.CreateCourse(context.Background(), domain.Course{
		Title:           "Algebra",
		Reference:       "ALG-1",
		DurationMinutes: 90,
	})
	if err != nil {
		t.Fatalf("CreateCourse: %v", err)
	}
	if id != "41" {
		t.Errorf("id = %q, want 41", id)
	}
	if got.Type != "internal" || got.State != "validated" || !got.Visible {
		t.Errorf("course payload = %+v", got)
	}
	if got.IDUser != 3 || got.Language != "en-US" {
		t.Errorf("user/language = %d %q", got.IDUser, got.Language)
	}
	if got.Keywords == nil {
		t.Error("keywords must be an empty array, not null")
	}
}

func TestCreateModuleAndStep(t *testing.T) {
	var gotModule moduleCreateRequest
	var gotStep stepCreateRequest
	var tokenHits int
	mux := http.NewServeMux()
	mux.HandleFunc("/modules", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotModule); err != nil {
			t.Errorf("decode module: %v", err)
		}
		fmt.Fprint(w, `{"id":52}`)
	})
	mux.HandleFunc("/steps", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotStep); err != nil {
			t.Errorf("decode step: %v", err)
		}
		fmt.Fprint(w, `{"id":63}`)
	})
	srv := testServer(t, mux, &tokenHits)
	defer srv.Close()

	c := New(srv.URL, "pub", "priv", 3)
	course := domain.Course{Title: "Algebra", Reference: "ALG-1", DurationMinutes: 90}

	moduleID, err := c.CreateModule(context.Background(), "41", course)
	if err != nil {
		t.Fatalf("CreateModule: %v", err)
	}
	if moduleID != "52" {
		t.Errorf("module id = %q", moduleID)
	}
	if gotModule.IDTraining != 41 || gotModule.Title != "Module 1" || gotModule.Type != "online" {
		t.Errorf("module payload = %+v", gotModule)
	}
	if gotModule.Reference != "ALG-1_M1" {
		t.Errorf("module reference = %q", gotModule.Reference)
	}

	stepID, err := c.CreateScormStep(context.Background(), moduleID, course)
	if err != nil {
		t.Fatalf("CreateScormStep: %v", err)
	}
	if stepID != "63" {
		t.Errorf("step id = %q", stepID)
	}
	if gotStep.IDModule != 52 || gotStep.Title != "Content" || gotStep.Type != "scorm" {
		t.Errorf("step payload = %+v", gotStep)
	}
	if gotStep.Reference != "ALG-1_M1_S1" {
		t.Errorf("step reference = %q", gotStep.Reference)
	}

	// both calls reuse the cached token
	if tokenHits != 1 {
		t.Errorf("token requests = %d, want 1", tokenHits)
	}
}

func TestCreateModuleBadCourseID(t *testing.T) {
	c := New("http://unused.invalid", "pub", "priv", 3)
	if _, err := c.CreateModule(context.Background(), "not-a-number", domain.Course{}); err == nil {
		t.Fatal("expected error for non-numeric course id")
	}
}

func TestCreateCourseMissingID(t *testing.T) {
	var tokenHits int
	mux := http.NewServeMux()
	mux.HandleFunc("/courses", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})
	srv := testServer(t, mux, &tokenHits)
	defer srv.Close()

	c := New(srv.URL, "pub", "priv", 3)
	if _, err := c.CreateCourse(context.Background(), domain.Course{Title: "x"}); err == nil {
		t.Fatal("expected error when response has no id")
	}
}

func TestUploadScormPackage(t *testing.T) {
	var gotFilename string
	var gotContent []byte
	var tokenHits int
	mux := http.NewServeMux()
	mux.HandleFunc("/steps/content/63", func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer tok-1" {
			t.Errorf("auth header = %q", auth)
		}
		f, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer f.Close()
		gotFilename = header.Filename
		gotContent, _ = io.ReadAll(f)
		fmt.Fprint(w, `{}`)
	})
	srv := testServer(t, mux, &tokenHits)
	defer srv.Close()

	c := New(srv.URL, "pub", "priv", 3)
	err := c.UploadScormPackage(context.Background(), "63", []byte("zip-bytes"), "course_7.zip")
	if err != nil {
		t.Fatalf("UploadScormPackage: %v", err)
	}
	if gotFilename != "course_7.zip" {
		t.Errorf("filename = %q", gotFilename)
	}
	if string(gotContent) != "zip-bytes" {
		t.Errorf("content = %q", gotContent)
	}
}

func TestEnsureTokenRejectsEmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"expires_in":3600}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "pub", "priv", 3)
	if _, err := c.ensureToken(context.Background()); err == nil {
		t.Fatal("expected error for missing access_token")
	}
}
