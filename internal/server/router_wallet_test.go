package server

import (
	"net/http"
	"strings"
	"testing"

	"github.com/dimsum-app/backend/internal/users"
)

func TestWalletBindFlowOverHTTP(t *testing.T) {
	fixture := newRouterFixture(t, nil)
	fixture.seedUser(t, users.User{ID: "user-1"})
	cookie := fixture.sessionCookie(t, "user-1")

	recorder := fixture.do(t, http.MethodGet, "/wallet/nonce", nil, func(r *http.Request) {
		r.AddCookie(cookie)
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("nonce request failed: %d %s", recorder.Code, recorder.Body.String())
	}
	var challenge noncePayload
	decodeBody(t, recorder, &challenge)
	if challenge.Nonce == "" || !strings.Contains(challenge.Message, challenge.Nonce) {
		t.Fatalf("unexpected challenge %#v", challenge)
	}

	key, address := newSigningKey(t)
	signature := signPersonalMessage(t, key, challenge.Message)

	recorder = fixture.do(t, http.MethodPost, "/wallet/bind", map[string]string{
		"address":   address,
		"signature": signature,
		"nonce":     challenge.Nonce,
	}, func(r *http.Request) {
		r.AddCookie(cookie)
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("bind failed: %d %s", recorder.Code, recorder.Body.String())
	}
	var bound struct {
		Address string `json:"address"`
	}
	decodeBody(t, recorder, &bound)
	if bound.Address != strings.ToLower(address) {
		t.Fatalf("expected lowercase address, got %s", bound.Address)
	}

	var stored users.User
	if err := fixture.db.Where("id = ?", "user-1").Take(&stored).Error; err != nil {
		t.Fatalf("failed to reload user: %v", err)
	}
	if stored.EthAddress == nil || *stored.EthAddress != strings.ToLower(address) {
		t.Fatalf("binding not persisted: %v", stored.EthAddress)
	}

	// The burned nonce cannot be replayed.
	recorder = fixture.do(t, http.MethodPost, "/wallet/bind", map[string]string{
		"address":   address,
		"signature": signature,
		"nonce":     challenge.Nonce,
	}, func(r *http.Request) {
		r.AddCookie(cookie)
	})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for replayed nonce, got %d", recorder.Code)
	}
	var failure struct {
		Error string `json:"error"`
	}
	decodeBody(t, recorder, &failure)
	if failure.Error != "invalid_nonce" {
		t.Fatalf("unexpected error code %s", failure.Error)
	}
}

func TestWalletBindRejectsAddressBoundElsewhere(t *testing.T) {
	fixture := newRouterFixture(t, nil)
	fixture.seedUser(t, users.User{ID: "user-1"})
	fixture.seedUser(t, users.User{ID: "user-2"})

	key, address := newSigningKey(t)

	bind := func(userID string) *struct {
		code int
		body string
	} {
		cookie := fixture.sessionCookie(t, userID)
		recorder := fixture.do(t, http.MethodGet, "/wallet/nonce", nil, func(r *http.Request) {
			r.AddCookie(cookie)
		})
		if recorder.Code != http.StatusOK {
			t.Fatalf("nonce request failed: %d", recorder.Code)
		}
		var challenge noncePayload
		decodeBody(t, recorder, &challenge)

		recorder = fixture.do(t, http.MethodPost, "/wallet/bind", map[string]string{
			"address":   address,
			"signature": signPersonalMessage(t, key, challenge.Message),
			"nonce":     challenge.Nonce,
		}, func(r *http.Request) {
			r.AddCookie(cookie)
		})
		return &struct {
			code int
			body string
		}{recorder.Code, recorder.Body.String()}
	}

	if result := bind("user-1"); result.code != http.StatusOK {
		t.Fatalf("first bind should succeed: %d %s", result.code, result.body)
	}
	result := bind("user-2")
	if result.code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate address, got %d %s", result.code, result.body)
	}
	if !strings.Contains(result.body, "address_already_bound") {
		t.Fatalf("unexpected error body %s", result.body)
	}
}

func TestWalletRoutesRequireSession(t *testing.T) {
	fixture := newRouterFixture(t, nil)

	recorder := fixture.do(t, http.MethodGet, "/wallet/nonce", nil, nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without cookie, got %d", recorder.Code)
	}

	recorder = fixture.do(t, http.MethodPost, "/wallet/unbind", nil, nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without cookie, got %d", recorder.Code)
	}
}

func TestWalletUnbindOverHTTP(t *testing.T) {
	fixture := newRouterFixture(t, nil)
	address := "0xabcd000000000000000000000000000000000001"
	fixture.seedUser(t, users.User{ID: "user-1", EthAddress: &address})
	cookie := fixture.sessionCookie(t, "user-1")

	recorder := fixture.do(t, http.MethodPost, "/wallet/unbind", nil, func(r *http.Request) {
		r.AddCookie(cookie)
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("unbind failed: %d %s", recorder.Code, recorder.Body.String())
	}

	// A second unbind has nothing to clear.
	recorder = fixture.do(t, http.MethodPost, "/wallet/unbind", nil, func(r *http.Request) {
		r.AddCookie(cookie)
	})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for double unbind, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "no_wallet_bound") {
		t.Fatalf("unexpected error body %s", recorder.Body.String())
	}
}
