package xui

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/login", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "admin", r.FormValue("username"))
		assert.Equal(t, "secret", r.FormValue("password"))

		http.SetCookie(w, &http.Cookie{Name: "3x-ui", Value: "session"})
		w.Write([]byte(`{"success": true}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "admin", "secret")
	defer client.Close()

	require.NoError(t, client.Login(context.Background()))
}

func TestLoginPlainTextResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Login Success"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "admin", "secret")
	defer client.Close()

	require.NoError(t, client.Login(context.Background()))
}

func TestLoginRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "msg": "wrong password"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "admin", "wrong")
	defer client.Close()

	err := client.Login(context.Background())
	require.ErrorIs(t, err, ErrAuth)
	assert.Contains(t, err.Error(), "wrong password")
}

func TestLoginBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "admin", "secret")
	defer client.Close()

	require.ErrorIs(t, client.Login(context.Background()), ErrAuth)
}

// Prefixes must be walked in order; the first 200/success answer wins and
// later prefixes are never touched.
func TestRequestPrefixFallback(t *testing.T) {
	var hits []string
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, r.URL.Path)
		http.NotFound(w, r)
	})
	mux.HandleFunc("/panel/api/inbounds/get/3", func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, r.URL.Path)
		w.Write([]byte(`{"success": true, "obj": {"id": 3, "port": 443, "remark": "edge"}}`))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL, "admin", "secret")
	defer client.Close()

	inbound, err := client.GetInbound(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 443, inbound.Port)
	assert.Equal(t, "edge", inbound.Remark)

	require.Equal(t, []string{
		"/api/inbounds/get/3",
		"/panel/api/inbounds/get/3",
	}, hits, "third prefix must not be tried after a success")
}

func TestRequestAllPrefixesFail(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`{"success": false}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "admin", "secret")
	defer client.Close()

	_, err := client.GetInbound(context.Background(), 3)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 3, hits)
}

func TestRequestTransportFault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // nothing listens anymore

	client := NewClient(server.URL, "admin", "secret")
	defer client.Close()

	_, err := client.GetInbound(context.Background(), 3)
	require.ErrorIs(t, err, ErrTransport)
}

func TestUpdateInboundSendsFullDocument(t *testing.T) {
	inbound := &Inbound{
		ID:       3,
		Remark:   "edge",
		Enable:   true,
		Port:     443,
		Protocol: "vless",
		Settings: `{"clients":[]}`,
	}

	var gotBody []byte
	mux := http.NewServeMux()
	mux.HandleFunc("/api/inbounds/update/3", func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"success": true}`))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL, "admin", "secret")
	defer client.Close()

	require.NoError(t, client.UpdateInbound(context.Background(), 3, inbound))
	assert.Contains(t, string(gotBody), `"remark":"edge"`)
	assert.Contains(t, string(gotBody), `"protocol":"vless"`)
	assert.Contains(t, string(gotBody), `"settings":"{\"clients\":[]}"`)
}

func TestOnlines(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/inbounds/onlines", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		w.Write([]byte(`{"success": true, "obj": ["user_1_1000", "manual"]}`))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL, "admin", "secret")
	defer client.Close()

	emails, err := client.Onlines(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"user_1_1000", "manual"}, emails)
}
