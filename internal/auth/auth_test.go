package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func testAdmin(t *testing.T) Admin {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("studio-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return Admin{Email: "admin@example.com", PasswordHash: string(hash)}
}

func TestEnabled(t *testing.T) {
	if (Admin{}).Enabled() {
		t.Error("zero Admin should be disabled")
	}
	if (Admin{Email: "a@b.c"}).Enabled() {
		t.Error("email without hash should be disabled")
	}
	if (Admin{PasswordHash: "$2a$10$x"}).Enabled() {
		t.Error("hash without email should be disabled")
	}
	if !testAdmin(t).Enabled() {
		t.Error("fully configured Admin should be enabled")
	}
}

func TestAuthorize(t *testing.T) {
	a := testAdmin(t)

	if !a.Authorize("admin@example.com", "studio-secret") {
		t.Error("correct credentials rejected")
	}
	if a.Authorize("other@example.com", "studio-secret") {
		t.Error("wrong email accepted")
	}
	if a.Authorize("admin@example.com", "wrong") {
		t.Error("wrong password accepted")
	}
	if a.Authorize("", "") {
		t.Error("empty credentials accepted")
	}
}

func TestAuthorize_DisabledRejectsEverything(t *testing.T) {
	var a Admin
	if a.Authorize("", "") {
		t.Error("disabled admin accepted empty credentials")
	}
	if a.Authorize("admin@example.com", "studio-secret") {
		t.Error("disabled admin accepted credentials")
	}
}

func TestMiddleware(t *testing.T) {
	a := testAdmin(t)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := a.Middleware(inner)

	t.Run("no credentials", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", w.Code)
		}
		if got := w.Header().Get("WWW-Authenticate"); got != `Basic realm="studio", charset="UTF-8"` {
			t.Errorf("WWW-Authenticate = %q", got)
		}
		if got := w.Body.String(); got != `{"error":"unauthorized"}` {
			t.Errorf("body = %q", got)
		}
	})

	t.Run("wrong credentials", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.SetBasicAuth("admin@example.com", "guess")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", w.Code)
		}
	})

	t.Run("failure hook fires on rejection only", func(t *testing.T) {
		hooked := a
		failures := 0
		hooked.OnFailure = func() { failures++ }
		h := hooked.Middleware(inner)

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		h.ServeHTTP(httptest.NewRecorder(), r)

		r = httptest.NewRequest(http.MethodGet, "/", nil)
		r.SetBasicAuth("admin@example.com", "studio-secret")
		h.ServeHTTP(httptest.NewRecorder(), r)

		if failures != 1 {
			t.Fatalf("OnFailure fired %d times, want 1", failures)
		}
	})

	t.Run("correct credentials", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.SetBasicAuth("admin@example.com", "studio-secret")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		if w.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", w.Code)
		}
	})
}
