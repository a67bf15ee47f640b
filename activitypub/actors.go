package activitypub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/deemkeen/andstatus/domain"
)

// ActorResponse represents the JSON structure of an ActivityPub actor
type ActorResponse struct {
	Context           interface{}     `json:"@context"`
	ID                string          `json:"id"`
	Type              string          `json:"type"`
	PreferredUsername string          `json:"preferredUsername"`
	Name              string          `json:"name"`
	Summary           string          `json:"summary"`
	URL               json.RawMessage `json:"url"`
	Inbox             string          `json:"inbox"`
	Outbox            string          `json:"outbox"`
	Followers         string          `json:"followers"`
	Following         string          `json:"following"`
	Published         string          `json:"published"`
	Updated           string          `json:"updated"`
	Icon              struct {
		Type      string `json:"type"`
		MediaType string `json:"mediaType"`
		URL       string `json:"url"`
	} `json:"icon"`
}

func isActorType(t string) bool {
	switch t {
	case "Person", "Service", "Application", "Group", "Organization":
		return true
	}
	return false
}

// actorRef reads an actor field that is a URI or an embedded actor.
func actorRef(raw json.RawMessage) *domain.Actor {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var uri string
	if err := json.Unmarshal(raw, &uri); err == nil {
		if uri == "" {
			return nil
		}
		return &domain.Actor{Oid: uri}
	}
	var resp ActorResponse
	if err := json.Unmarshal(raw, &resp); err != nil || resp.ID == "" {
		return nil
	}
	return resp.toActor()
}

func actorFromObject(obj *Object) *domain.Actor {
	return &domain.Actor{Oid: obj.ID, RealName: obj.Name, GroupType: domain.GroupTypeFromObjectType(obj.Type),
		UpdatedAt: firstTime(obj.Updated, obj.Published), CreatedAt: parseTime(obj.Published)}
}

func (r *ActorResponse) toActor() *domain.Actor {
	a := &domain.Actor{
		Oid:         r.ID,
		Username:    r.PreferredUsername,
		RealName:    r.Name,
		Summary:     r.Summary,
		ProfileURL:  firstString(r.URL),
		AvatarURL:   r.Icon.URL,
		GroupType:   domain.GroupTypeFromObjectType(r.Type),
		CreatedAt:   parseTime(r.Published),
		UpdatedAt:   firstTime(r.Updated, r.Published),
	}
	if a.Username == "" {
		a.Username = extractUsername(r.ID)
	}
	if host, err := extractDomain(r.ID); err == nil && host != "" && a.Username != "" {
		a.WebFingerId = strings.ToLower(a.Username + "@" + host)
	}
	return a
}

// ParseActor normalizes an actor document.
func ParseActor(body []byte) (*domain.Actor, *ActorResponse, error) {
	var resp ActorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, nil, fmt.Errorf("failed to parse actor JSON: %w", err)
	}
	if resp.ID == "" {
		return nil, nil, fmt.Errorf("actor missing id")
	}
	return resp.toActor(), &resp, nil
}

// FetchActor fetches an actor document from a remote server.
func (c *Client) FetchActor(ctx context.Context, actorURI string) (*domain.Actor, *ActorResponse, error) {
	body, err := c.get(ctx, actorURI)
	if err != nil {
		return nil, nil, err
	}
	return ParseActor(body)
}

// extractDomain extracts the domain from an actor URI
// Example: "https://mastodon.social/users/alice" -> "mastodon.social"
func extractDomain(actorURI string) (string, error) {
	parsed, err := url.Parse(actorURI)
	if err != nil {
		return "", fmt.Errorf("invalid actor URI: %w", err)
	}

	return parsed.Host, nil
}

// extractUsername extracts username from various URI formats
// Examples:
// - "https://example.com/users/alice" -> "alice"
// - "https://example.com/@alice" -> "alice"
func extractUsername(uri string) string {
	parts := strings.Split(strings.TrimSuffix(uri, "/"), "/")
	if len(parts) > 0 {
		username := parts[len(parts)-1]
		// Remove @ prefix if present
		return strings.TrimPrefix(username, "@")
	}
	return ""
}
