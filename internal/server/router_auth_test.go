package server

import (
	"net/http"
	"strings"
	"testing"

	"github.com/dimsum-app/backend/internal/auth"
	"github.com/dimsum-app/backend/internal/users"
)

func TestLoginIssuesTokensForKnownUnionID(t *testing.T) {
	fixture := newRouterFixture(t, stubExchanger{
		session: auth.WeChatSession{OpenID: "open-1", UnionID: "union-1"},
	})
	unionID := "union-1"
	fixture.seedUser(t, users.User{ID: "user-1", Name: "Ah Ming", UnionID: &unionID})

	recorder := fixture.do(t, http.MethodPost, "/auth/login", map[string]string{"code": "login-code"}, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", recorder.Code, recorder.Body.String())
	}
	var response loginResponsePayload
	decodeBody(t, recorder, &response)
	if response.AccessToken == "" || response.RefreshToken == "" {
		t.Fatalf("expected a token pair, got %#v", response.tokenPairPayload)
	}
	if response.User.ID != "user-1" || response.User.Name != "Ah Ming" {
		t.Fatalf("unexpected user projection %#v", response.User)
	}

	// The minted access token opens the bearer surface.
	recorder = fixture.do(t, http.MethodGet, "/user/profile", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+response.AccessToken)
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("profile request failed: %d %s", recorder.Code, recorder.Body.String())
	}
	var profile users.Profile
	decodeBody(t, recorder, &profile)
	if profile.ID != "user-1" {
		t.Fatalf("unexpected profile %#v", profile)
	}
}

func TestLoginRejectsUnknownUnionID(t *testing.T) {
	fixture := newRouterFixture(t, stubExchanger{
		session: auth.WeChatSession{OpenID: "open-1", UnionID: "union-unknown"},
	})

	recorder := fixture.do(t, http.MethodPost, "/auth/login", map[string]string{"code": "login-code"}, nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown union id, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "user_not_found") {
		t.Fatalf("unexpected body %s", recorder.Body.String())
	}
}

func TestLoginSurfacesCodeExchangeFailure(t *testing.T) {
	fixture := newRouterFixture(t, stubExchanger{err: auth.ErrCodeExchangeFailed})

	recorder := fixture.do(t, http.MethodPost, "/auth/login", map[string]string{"code": "bad-code"}, nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for failed exchange, got %d", recorder.Code)
	}

	recorder = fixture.do(t, http.MethodPost, "/auth/login", map[string]string{}, nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing code, got %d", recorder.Code)
	}
}

func TestRefreshRotationInvalidatesPriorToken(t *testing.T) {
	fixture := newRouterFixture(t, stubExchanger{
		session: auth.WeChatSession{OpenID: "open-1", UnionID: "union-1"},
	})
	unionID := "union-1"
	fixture.seedUser(t, users.User{ID: "user-1", UnionID: &unionID})

	recorder := fixture.do(t, http.MethodPost, "/auth/login", map[string]string{"code": "login-code"}, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", recorder.Code, recorder.Body.String())
	}
	var login loginResponsePayload
	decodeBody(t, recorder, &login)

	recorder = fixture.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": login.RefreshToken}, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("refresh failed: %d %s", recorder.Code, recorder.Body.String())
	}
	var rotated tokenPairPayload
	decodeBody(t, recorder, &rotated)
	if rotated.RefreshToken == "" || rotated.RefreshToken == login.RefreshToken {
		t.Fatalf("rotation must mint a fresh refresh token")
	}

	// The superseded refresh token carries a stale generation.
	recorder = fixture.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": login.RefreshToken}, nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for superseded refresh token, got %d %s", recorder.Code, recorder.Body.String())
	}

	// The rotated token still works.
	recorder = fixture.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": rotated.RefreshToken}, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("rotated refresh token should work: %d %s", recorder.Code, recorder.Body.String())
	}
}

func TestRefreshRejectsAccessTokenAndGarbage(t *testing.T) {
	fixture := newRouterFixture(t, nil)
	user := fixture.seedUser(t, users.User{ID: "user-1"})
	access := fixture.accessToken(t, user)

	recorder := fixture.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": access}, nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("access token must not refresh, got %d", recorder.Code)
	}

	recorder = fixture.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": "garbage"}, nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", recorder.Code)
	}
}

func TestProfileRequiresBearerToken(t *testing.T) {
	fixture := newRouterFixture(t, nil)

	recorder := fixture.do(t, http.MethodGet, "/user/profile", nil, nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer token, got %d", recorder.Code)
	}

	recorder = fixture.do(t, http.MethodGet, "/user/profile", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer not-a-token")
	})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid token, got %d", recorder.Code)
	}
}

func TestTaggerSurfaceEnforcesRoles(t *testing.T) {
	fixture := newRouterFixture(t, nil)
	regular := fixture.seedUser(t, users.User{ID: "user-1", Role: users.RoleUser})
	tagger := fixture.seedUser(t, users.User{ID: "user-2", Role: users.RoleTaggerPartner})
	admin := fixture.seedUser(t, users.User{ID: "user-3", Role: users.RoleUser, IsSystemAdmin: true})

	cases := []struct {
		name string
		user users.User
		want int
	}{
		{name: "regular user is forbidden", user: regular, want: http.StatusForbidden},
		{name: "tagger partner passes", user: tagger, want: http.StatusOK},
		{name: "system admin overrides the role set", user: admin, want: http.StatusOK},
	}
	for _, tc := range cases {
		token := fixture.accessToken(t, tc.user)
		recorder := fixture.do(t, http.MethodGet, "/tagger/profile", nil, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+token)
		})
		if recorder.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d %s", tc.name, tc.want, recorder.Code, recorder.Body.String())
		}
	}
}

func TestHealthzIsPublic(t *testing.T) {
	fixture := newRouterFixture(t, nil)

	recorder := fixture.do(t, http.MethodGet, "/healthz", nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", recorder.Code)
	}
}
