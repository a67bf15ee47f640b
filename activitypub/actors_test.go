package activitypub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deemkeen/andstatus/domain"
)

const aliceJSON = `{
	"@context": "https://www.w3.org/ns/activitystreams",
	"id": "https://mastodon.social/users/alice",
	"type": "Person",
	"preferredUsername": "Alice",
	"name": "Alice Example",
	"summary": "Just a test user",
	"url": "https://mastodon.social/@alice",
	"inbox": "https://mastodon.social/users/alice/inbox",
	"outbox": "https://mastodon.social/users/alice/outbox",
	"published": "2024-01-01T00:00:00Z",
	"icon": {
		"type": "Image",
		"mediaType": "image/png",
		"url": "https://mastodon.social/avatars/alice.png"
	}
}`

func TestParseActor(t *testing.T) {
	actor, resp, err := ParseActor([]byte(aliceJSON))
	if err != nil {
		t.Fatalf("Failed to parse actor: %v", err)
	}
	if actor.Oid != "https://mastodon.social/users/alice" {
		t.Errorf("Expected oid, got '%s'", actor.Oid)
	}
	if actor.Username != "Alice" || actor.RealName != "Alice Example" {
		t.Errorf("Unexpected names %s / %s", actor.Username, actor.RealName)
	}
	if actor.WebFingerId != "alice@mastodon.social" {
		t.Errorf("Expected lowercased webfinger id, got '%s'", actor.WebFingerId)
	}
	if actor.ProfileURL != "https://mastodon.social/@alice" {
		t.Errorf("Unexpected profile url '%s'", actor.ProfileURL)
	}
	if actor.AvatarURL != "https://mastodon.social/avatars/alice.png" {
		t.Errorf("Unexpected avatar '%s'", actor.AvatarURL)
	}
	if actor.GroupType != domain.GroupNotAGroup {
		t.Errorf("Expected person, got %s", actor.GroupType)
	}
	if actor.UpdatedAt.IsZero() {
		t.Error("Expected published date as update date")
	}
	if resp.Outbox != "https://mastodon.social/users/alice/outbox" {
		t.Errorf("Unexpected outbox '%s'", resp.Outbox)
	}
}

func TestParseActorWithoutUsername(t *testing.T) {
	actor, _, err := ParseActor([]byte(`{"id": "https://example.com/users/bob", "type": "Group"}`))
	if err != nil {
		t.Fatalf("Failed to parse actor: %v", err)
	}
	if actor.Username != "bob" {
		t.Errorf("Expected username from the uri, got '%s'", actor.Username)
	}
	if actor.GroupType != domain.GroupGeneric {
		t.Errorf("Expected group, got %s", actor.GroupType)
	}
}

func TestParseActorValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing id", `{"type": "Person", "preferredUsername": "alice"}`},
		{"invalid json", `{"id": `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseActor([]byte(tt.body)); err == nil {
				t.Error("Expected error but got none")
			}
		})
	}
}

func TestFetchActor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/activity+json" {
			t.Errorf("Unexpected Accept header '%s'", r.Header.Get("Accept"))
		}
		if r.URL.Path != "/users/alice" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/activity+json")
		w.Write([]byte(aliceJSON))
	}))
	defer server.Close()

	client := NewClient(0)
	actor, _, err := client.FetchActor(context.Background(), server.URL+"/users/alice")
	if err != nil {
		t.Fatalf("Failed to fetch actor: %v", err)
	}
	if actor.RealName != "Alice Example" {
		t.Errorf("Unexpected actor %+v", actor)
	}

	if _, _, err := client.FetchActor(context.Background(), server.URL+"/users/nobody"); err == nil {
		t.Error("Expected error for missing actor")
	}
}

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		name       string
		actorURI   string
		wantDomain string
		wantError  bool
	}{
		{
			name:       "Mastodon user",
			actorURI:   "https://mastodon.social/users/alice",
			wantDomain: "mastodon.social",
			wantError:  false,
		},
		{
			name:       "Pleroma user",
			actorURI:   "https://pleroma.site/users/bob",
			wantDomain: "pleroma.site",
			wantError:  false,
		},
		{
			name:       "Custom port",
			actorURI:   "https://social.example.com:8080/users/charlie",
			wantDomain: "social.example.com:8080",
			wantError:  false,
		},
		{
			name:       "Subdomain",
			actorURI:   "https://masto.subdomain.example.com/users/dave",
			wantDomain: "masto.subdomain.example.com",
			wantError:  false,
		},
		{
			name:       "Invalid URI",
			actorURI:   "://invalid",
			wantDomain: "",
			wantError:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			domain, err := extractDomain(tt.actorURI)

			if tt.wantError && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.wantError && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
			if domain != tt.wantDomain {
				t.Errorf("Expected domain '%s', got '%s'", tt.wantDomain, domain)
			}
		})
	}
}

func TestExtractUsername(t *testing.T) {
	tests := []struct {
		name         string
		uri          string
		wantUsername string
	}{
		{
			name:         "standard users path",
			uri:          "https://mastodon.social/users/alice",
			wantUsername: "alice",
		},
		{
			name:         "@ prefix path",
			uri:          "https://mastodon.social/@bob",
			wantUsername: "bob",
		},
		{
			name:         "activity path",
			uri:          "https://example.com/users/charlie/statuses/123",
			wantUsername: "123",
		},
		{
			name:         "simple path",
			uri:          "https://example.com/dave",
			wantUsername: "dave",
		},
		{
			name:         "trailing slash",
			uri:          "https://example.com/users/erin/",
			wantUsername: "erin",
		},
		{
			name:         "empty uri",
			uri:          "",
			wantUsername: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			username := extractUsername(tt.uri)
			if username != tt.wantUsername {
				t.Errorf("Expected username '%s', got '%s'", tt.wantUsername, username)
			}
		})
	}
}
