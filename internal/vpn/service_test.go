package vpn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"redweb-bot/internal/config"
	"redweb-bot/internal/xui"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePanel emulates the slice of the 3x-ui API the service touches: login,
// inbound fetch, inbound update, traffics and onlines under the first prefix.
type fakePanel struct {
	t *testing.T

	inbound     *xui.Inbound // nil = inbound lookup fails
	logins      int
	updates     []xui.Inbound
	failUpdates bool
	traffics    map[string]xui.ClientTraffic
	onlines     []string
}

func (p *fakePanel) server() *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		p.logins++
		w.Write([]byte(`{"success": true}`))
	})

	mux.HandleFunc("/api/inbounds/get/3", func(w http.ResponseWriter, r *http.Request) {
		if p.inbound == nil {
			w.Write([]byte(`{"success": false, "msg": "record not found"}`))
			return
		}
		obj, err := json.Marshal(p.inbound)
		require.NoError(p.t, err)
		w.Write([]byte(`{"success": true, "obj": ` + string(obj) + `}`))
	})

	mux.HandleFunc("/api/inbounds/update/3", func(w http.ResponseWriter, r *http.Request) {
		if p.failUpdates {
			w.Write([]byte(`{"success": false, "msg": "update rejected"}`))
			return
		}
		var pushed xui.Inbound
		require.NoError(p.t, json.NewDecoder(r.Body).Decode(&pushed))
		p.updates = append(p.updates, pushed)
		w.Write([]byte(`{"success": true}`))
	})

	mux.HandleFunc("/api/inbounds/getClientTraffics/", func(w http.ResponseWriter, r *http.Request) {
		email := strings.TrimPrefix(r.URL.Path, "/api/inbounds/getClientTraffics/")
		traffic, ok := p.traffics[email]
		if !ok {
			w.Write([]byte(`{"success": false}`))
			return
		}
		obj, _ := json.Marshal(traffic)
		w.Write([]byte(`{"success": true, "obj": ` + string(obj) + `}`))
	})

	mux.HandleFunc("/api/inbounds/onlines", func(w http.ResponseWriter, r *http.Request) {
		obj, _ := json.Marshal(p.onlines)
		w.Write([]byte(`{"success": true, "obj": ` + string(obj) + `}`))
	})

	return httptest.NewServer(mux)
}

func testConfig(panelURL string) *config.Config {
	return &config.Config{
		XUIAPIURL:          panelURL,
		XUIUsername:        "admin",
		XUIPassword:        "secret",
		XUIHost:            "vpn.example.com",
		InboundID:          3,
		RealityPublicKey:   "pbk-value",
		RealityFingerprint: "chrome",
		RealitySNI:         "google.com,yahoo.com",
		RealityShortID:     "70e79f93c1,57",
		RealitySpiderX:     "/",
	}
}

func testInbound(settings string) *xui.Inbound {
	return &xui.Inbound{
		ID:             3,
		Remark:         "edge",
		Enable:         true,
		Port:           443,
		Protocol:       "vless",
		Settings:       settings,
		StreamSettings: `{"network":"tcp","security":"reality"}`,
		Sniffing:       `{"enabled":true}`,
	}
}

func TestCreateProfile(t *testing.T) {
	panel := &fakePanel{
		t:       t,
		inbound: testInbound(`{"clients":[{"id":"old","email":"user_7_1234","enable":true}],"decryption":"none"}`),
	}
	server := panel.server()
	defer server.Close()

	service := NewService(testConfig(server.URL))

	profile, err := service.CreateProfile(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, profile)

	assert.NotEmpty(t, profile.ClientID)
	assert.True(t, strings.HasPrefix(profile.Email, "user_42_"))
	assert.Equal(t, 443, profile.Port)
	assert.Equal(t, "reality", profile.Security)
	assert.Equal(t, "edge", profile.Remark)

	require.Len(t, panel.updates, 1)
	pushed := panel.updates[0]
	// Whole document round-trips: untouched fields survive.
	assert.Equal(t, "vless", pushed.Protocol)
	assert.Equal(t, `{"enabled":true}`, pushed.Sniffing)

	var settings struct {
		Clients    []xui.InboundClient `json:"clients"`
		Decryption string              `json:"decryption"`
	}
	require.NoError(t, json.Unmarshal([]byte(pushed.Settings), &settings))
	assert.Equal(t, "none", settings.Decryption, "non-client settings keys must be preserved")
	require.Len(t, settings.Clients, 2)

	added := settings.Clients[1]
	assert.Equal(t, profile.ClientID, added.ID)
	assert.Equal(t, profile.Email, added.Email)
	assert.True(t, added.Enable)
	assert.Equal(t, "42", added.TgID)
	assert.Equal(t, "pbk-value", added.PublicKey)
	assert.Equal(t, "70e79f93c1", added.ShortID)

	// Grace expiry: now + 3 days, in milliseconds.
	wantExpiry := time.Now().Add(3 * 24 * time.Hour).UnixMilli()
	assert.InDelta(t, wantExpiry, added.ExpiryTime, float64(time.Minute.Milliseconds()))

	assert.Equal(t, 1, panel.logins, "one login per logical operation")
}

func TestCreateProfileMissingInbound(t *testing.T) {
	panel := &fakePanel{t: t, inbound: nil}
	server := panel.server()
	defer server.Close()

	service := NewService(testConfig(server.URL))

	profile, err := service.CreateProfile(context.Background(), 42)
	require.ErrorIs(t, err, ErrProvision)
	assert.Nil(t, profile)
	assert.Empty(t, panel.updates, "no update may be issued when the inbound is unavailable")
}

func TestCreateProfileMalformedSettings(t *testing.T) {
	panel := &fakePanel{t: t, inbound: testInbound(`{not json`)}
	server := panel.server()
	defer server.Close()

	service := NewService(testConfig(server.URL))

	profile, err := service.CreateProfile(context.Background(), 42)
	require.ErrorIs(t, err, ErrProvision)
	assert.Nil(t, profile)
	assert.Empty(t, panel.updates)
}

func TestCreateProfileUpdateRejected(t *testing.T) {
	panel := &fakePanel{
		t:           t,
		inbound:     testInbound(`{"clients":[]}`),
		failUpdates: true,
	}
	server := panel.server()
	defer server.Close()

	service := NewService(testConfig(server.URL))

	profile, err := service.CreateProfile(context.Background(), 42)
	require.ErrorIs(t, err, ErrProvision)
	assert.Nil(t, profile)
}

func TestDeleteClient(t *testing.T) {
	panel := &fakePanel{
		t:       t,
		inbound: testInbound(`{"clients":[{"id":"a","email":"user_42_7781"},{"id":"b","email":"user_9_1111"}]}`),
	}
	server := panel.server()
	defer server.Close()

	service := NewService(testConfig(server.URL))

	require.NoError(t, service.DeleteClient(context.Background(), "user_42_7781"))

	require.Len(t, panel.updates, 1)
	var settings struct {
		Clients []xui.InboundClient `json:"clients"`
	}
	require.NoError(t, json.Unmarshal([]byte(panel.updates[0].Settings), &settings))
	require.Len(t, settings.Clients, 1)
	assert.Equal(t, "user_9_1111", settings.Clients[0].Email)
}

func TestDeleteClientAbsentIsNoop(t *testing.T) {
	panel := &fakePanel{
		t:       t,
		inbound: testInbound(`{"clients":[{"id":"b","email":"user_9_1111"}]}`),
	}
	server := panel.server()
	defer server.Close()

	service := NewService(testConfig(server.URL))

	require.NoError(t, service.DeleteClient(context.Background(), "user_42_7781"))
	assert.Empty(t, panel.updates, "removing an absent label must not touch the inbound")
}

func TestExtendClient(t *testing.T) {
	panel := &fakePanel{
		t:       t,
		inbound: testInbound(`{"clients":[{"id":"a","email":"user_42_7781","enable":false,"expiryTime":100}]}`),
	}
	server := panel.server()
	defer server.Close()

	service := NewService(testConfig(server.URL))
	until := time.Now().Add(30 * 24 * time.Hour).UTC()

	require.NoError(t, service.ExtendClient(context.Background(), "user_42_7781", until))

	require.Len(t, panel.updates, 1)
	var settings struct {
		Clients []xui.InboundClient `json:"clients"`
	}
	require.NoError(t, json.Unmarshal([]byte(panel.updates[0].Settings), &settings))
	require.Len(t, settings.Clients, 1)
	assert.Equal(t, until.UnixMilli(), settings.Clients[0].ExpiryTime)
	assert.True(t, settings.Clients[0].Enable)
}

func TestExtendClientUnknownLabel(t *testing.T) {
	panel := &fakePanel{t: t, inbound: testInbound(`{"clients":[]}`)}
	server := panel.server()
	defer server.Close()

	service := NewService(testConfig(server.URL))

	err := service.ExtendClient(context.Background(), "user_42_7781", time.Now())
	require.ErrorIs(t, err, ErrProvision)
}

func TestUserStats(t *testing.T) {
	panel := &fakePanel{
		t:        t,
		traffics: map[string]xui.ClientTraffic{"user_42_7781": {Email: "user_42_7781", Up: 100, Down: 2048}},
	}
	server := panel.server()
	defer server.Close()

	service := NewService(testConfig(server.URL))

	stats := service.UserStats(context.Background(), "user_42_7781")
	assert.Equal(t, Stats{Upload: 100, Download: 2048}, stats)

	// Unknown labels degrade to zero, not an error signal.
	assert.Equal(t, Stats{}, service.UserStats(context.Background(), "user_1_0000"))
}

func TestOnlineUsers(t *testing.T) {
	panel := &fakePanel{
		t:       t,
		onlines: []string{"user_1_1000", "manual-peer", "user_2_2000"},
	}
	server := panel.server()
	defer server.Close()

	service := NewService(testConfig(server.URL))
	assert.Equal(t, 2, service.OnlineUsers(context.Background()))
}

func TestOnlineUsersPanelDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	service := NewService(testConfig(server.URL))
	assert.Equal(t, 0, service.OnlineUsers(context.Background()))
}

func TestAccessURL(t *testing.T) {
	cfg := testConfig("https://panel.example.com")
	profile := &Profile{
		ClientID: "11111111-2222-3333-4444-555555555555",
		Email:    "user_42_7781",
		Port:     443,
		Security: "reality",
		Remark:   "edge",
	}

	got := AccessURL(cfg, profile)
	assert.Equal(t,
		"vless://11111111-2222-3333-4444-555555555555@vpn.example.com:443"+
			"?type=tcp&security=reality&pbk=pbk-value&fp=chrome"+
			"&sni=google.com&sid=70e79f93c1&spx=%2F#edge-user_42_7781",
		got)
}
