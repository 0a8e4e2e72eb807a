// Package mojang looks up player names on Mojang's session server.
package mojang

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/811Alex/MC-World-Analysis-Tools/world"
)

const (
	DefaultEndpoint = "https://sessionserver.mojang.com/session/minecraft/profile/"
	DefaultDelay    = 500 * time.Millisecond
	DefaultTimeout  = 10 * time.Second
	DefaultRetries  = 2

	// Placeholders printed in place of a name that could not be resolved.
	Floodgate = "<floodgate>"
	Unknown   = "<unknown>"
)

var ErrLookupFailed = errors.New("mojang: name lookup failed")

// Client resolves UUIDs to names. Requests are spaced at least Delay apart
// so a full player list does not trip the server's rate limit. A Client is
// safe for concurrent use.
type Client struct {
	HTTP     *http.Client
	Endpoint string
	Delay    time.Duration
	// Retries is how often a request that was throttled (429) or failed on
	// the server side (5xx) is repeated.
	Retries int
	Log     logrus.FieldLogger

	mu   sync.Mutex
	last time.Time
}

// NewClient returns a client for the public session server.
func NewClient() *Client {
	return &Client{
		HTTP:     &http.Client{Timeout: DefaultTimeout},
		Endpoint: DefaultEndpoint,
		Delay:    DefaultDelay,
		Retries:  DefaultRetries,
	}
}

type profile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Name returns the current name of the player id. found is false, with a
// placeholder name, when id belongs to a Floodgate (Bedrock) player or the
// server does not know it. err is only set when the server could not be
// asked at all.
func (c *Client) Name(ctx context.Context, id uuid.UUID) (name string, found bool, err error) {
	if world.IsFloodgate(id) {
		return Floodgate, false, nil
	}

	url := c.endpoint() + strings.ReplaceAll(id.String(), "-", "")
	log := c.log().WithField("player", id.String())

	for attempt := 0; ; attempt++ {
		if err := c.wait(ctx); err != nil {
			return Unknown, false, err
		}

		status, p, err := c.get(ctx, url)
		switch {
		case err != nil:
			return Unknown, false, fmt.Errorf("%w: %w", ErrLookupFailed, err)
		case status == http.StatusOK:
			if p.Name == "" {
				return Unknown, false, nil
			}
			return p.Name, true, nil
		case (status == http.StatusTooManyRequests || status >= 500) && attempt < c.Retries:
			log.WithField("status", status).Debug("name lookup throttled, retrying")
		default:
			log.WithField("status", status).Debug("name not found")
			return Unknown, false, nil
		}
	}
}

func (c *Client) get(ctx context.Context, url string) (int, profile, error) {
	var p profile
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, p, err
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, p, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, p, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return 0, p, fmt.Errorf("could not decode profile: %w", err)
	}
	return resp.StatusCode, p, nil
}

// wait blocks until Delay has passed since the previous request.
func (c *Client) wait(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.last.IsZero() {
		if d := c.Delay - time.Since(c.last); d > 0 {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	c.last = time.Now()
	return nil
}

func (c *Client) endpoint() string {
	if c.Endpoint == "" {
		return DefaultEndpoint
	}
	return c.Endpoint
}

var discard = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

func (c *Client) log() logrus.FieldLogger {
	if c.Log != nil {
		return c.Log
	}
	return discard
}
