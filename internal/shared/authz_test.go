package shared

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func claimsRequest(t *testing.T, claims *AccessClaims, userRef string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	sess := &Session{ID: "test", userRef: userRef, claims: claims}
	return req.WithContext(ContextWithSession(req.Context(), sess))
}

func runMiddleware(mw func(http.Handler) http.Handler, req *http.Request) int {
	rec := httptest.NewRecorder()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mw(next).ServeHTTP(rec, req)
	return rec.Code
}

func TestRequireAnyAllowsMatchingPermission(t *testing.T) {
	req := claimsRequest(t, &AccessClaims{Permissions: []string{"incident.view"}}, "alice")
	code := runMiddleware(RequireAny("incident.view", "incident.update"), req)
	if code != http.StatusNoContent {
		t.Fatalf("expected pass, got %d", code)
	}
}

func TestRequireAnyRejectsMissingPermission(t *testing.T) {
	req := claimsRequest(t, &AccessClaims{Permissions: []string{"incident.view"}}, "alice")
	code := runMiddleware(RequireAny("group.delete"), req)
	if code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAnyRejectsAnonymous(t *testing.T) {
	req := claimsRequest(t, &AccessClaims{Permissions: []string{"incident.view"}}, "")
	code := runMiddleware(RequireAny("incident.view"), req)
	if code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAnyRejectsMissingClaims(t *testing.T) {
	req := claimsRequest(t, nil, "alice")
	code := runMiddleware(RequireAny("incident.view"), req)
	if code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestUnrestrictedClaimsPassEverything(t *testing.T) {
	req := claimsRequest(t, &AccessClaims{Unrestricted: true}, "root")
	code := runMiddleware(RequireAll("system.admin", "group.delete", "user.delete"), req)
	if code != http.StatusNoContent {
		t.Fatalf("expected pass, got %d", code)
	}
}

func TestRequireAllNeedsEveryPermission(t *testing.T) {
	claims := &AccessClaims{Permissions: []string{"incident.view", "incident.update"}}

	req := claimsRequest(t, claims, "alice")
	if code := runMiddleware(RequireAll("incident.view", "incident.update"), req); code != http.StatusNoContent {
		t.Fatalf("expected pass, got %d", code)
	}

	req = claimsRequest(t, claims, "alice")
	if code := runMiddleware(RequireAll("incident.view", "incident.delete"), req); code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestPermissionMatchingIsCaseInsensitive(t *testing.T) {
	req := claimsRequest(t, &AccessClaims{Permissions: []string{"Incident.View"}}, "alice")
	if code := runMiddleware(RequireAny("INCIDENT.VIEW"), req); code != http.StatusNoContent {
		t.Fatalf("expected pass, got %d", code)
	}
}
