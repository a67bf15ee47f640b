package activitypub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/andstatus/domain"
	"github.com/deemkeen/andstatus/util"
)

const maxBodySize = 4 << 20

// Client fetches ActivityPub documents.
type Client struct {
	http      *http.Client
	userAgent string
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		userAgent: fmt.Sprintf("%s ActivityPub", util.GetNameAndVersion()),
	}
}

func (c *Client) get(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch of %s failed with status: %d", uri, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// collection is an OrderedCollection or one of its pages.
type collection struct {
	Type         string            `json:"type"`
	First        json.RawMessage   `json:"first"`
	Next         string            `json:"next"`
	OrderedItems []json.RawMessage `json:"orderedItems"`
	Items        []json.RawMessage `json:"items"`
}

func (c *collection) items() []json.RawMessage {
	if len(c.OrderedItems) > 0 {
		return c.OrderedItems
	}
	return c.Items
}

// OutboxConnector reads the activities of a remote outbox, oldest first
// within each page. It follows at most MaxPages pages.
type OutboxConnector struct {
	client   *Client
	originId int64
	next     string
	pending  []*domain.Activity
	pages    int
	MaxPages int
	log      *log.Logger
}

func NewOutboxConnector(client *Client, originId int64, outboxURL string) *OutboxConnector {
	return &OutboxConnector{
		client:   client,
		originId: originId,
		next:     outboxURL,
		MaxPages: 1,
		log:      util.Logger("Outbox"),
	}
}

// Next implements connector.Connector.
func (o *OutboxConnector) Next(ctx context.Context) (*domain.Activity, error) {
	for len(o.pending) == 0 {
		if o.next == "" || o.pages >= o.MaxPages {
			return nil, io.EOF
		}
		if err := o.fetchPage(ctx); err != nil {
			return nil, err
		}
	}
	act := o.pending[0]
	o.pending = o.pending[1:]
	return act, nil
}

func (o *OutboxConnector) fetchPage(ctx context.Context) error {
	uri := o.next
	o.next = ""
	body, err := o.client.get(ctx, uri)
	if err != nil {
		return err
	}
	var page collection
	if err := json.Unmarshal(body, &page); err != nil {
		return fmt.Errorf("failed to parse collection %s: %w", uri, err)
	}

	items := page.items()
	if len(items) == 0 && len(page.First) > 0 {
		// the collection itself: its first page is a link or embedded
		var firstURI string
		if err := json.Unmarshal(page.First, &firstURI); err == nil {
			o.next = firstURI
			return nil
		}
		var first collection
		if err := json.Unmarshal(page.First, &first); err != nil {
			return fmt.Errorf("failed to parse first page of %s: %w", uri, err)
		}
		page = first
		items = page.items()
	}

	o.pages++
	o.next = page.Next
	for i := len(items) - 1; i >= 0; i-- {
		act, err := ParseActivity(o.originId, items[i])
		if err != nil {
			o.log.Warn("Skipping outbox item", "page", uri, "err", err)
			continue
		}
		o.pending = append(o.pending, act)
	}
	o.log.Debug("Fetched outbox page", "page", uri, "activities", len(items))
	return nil
}
