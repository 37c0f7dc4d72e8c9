// Package twitter implements the platform relay client: posting statuses,
// sending and deleting direct messages, and managing follow relationships
// through OAuth1-signed REST calls.
package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/jonboulle/clockwork"

	"github.com/substitwt/recaster/internal/domain"
	"github.com/substitwt/recaster/internal/errors"
	"github.com/substitwt/recaster/internal/metrics"
	"github.com/substitwt/recaster/internal/retry"
)

const (
	defaultAPIBase = "https://api.twitter.com/1.1"
	callTimeout    = 5 * time.Second
)

// Credentials holds the four OAuth1 secrets for the bot account.
type Credentials struct {
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
}

type Client struct {
	http    *http.Client
	clock   clockwork.Clock
	apiBase string
}

type Option func(*Client)

// WithAPIBase overrides the REST endpoint, used by tests.
func WithAPIBase(base string) Option {
	return func(c *Client) { c.apiBase = strings.TrimRight(base, "/") }
}

// WithHTTPClient replaces the OAuth1-signing client, used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func NewClient(creds Credentials, clock clockwork.Clock, opts ...Option) *Client {
	oauthCfg := oauth1.NewConfig(creds.ConsumerKey, creds.ConsumerSecret)
	token := oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret)
	hc := oauthCfg.Client(oauth1.NoContext, token)
	hc.Timeout = callTimeout

	c := &Client{http: hc, clock: clock, apiBase: defaultAPIBase}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do issues one signed request and maps the response onto the error taxonomy:
// 401 is fatal, 420/429 and 5xx are transient, other non-2xx are plain errors.
func (c *Client) do(ctx context.Context, op, method, path string, form url.Values) ([]byte, error) {
	endpoint := c.apiBase + path

	var req *http.Request
	var err error
	if method == http.MethodGet {
		if len(form) > 0 {
			endpoint += "?" + form.Encode()
		}
		req, err = http.NewRequestWithContext(ctx, method, endpoint, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(form.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", op, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.PlatformCallsTotal.WithLabelValues(op, "error").Inc()
		return nil, errors.Transient(op+" request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.PlatformCallsTotal.WithLabelValues(op, "error").Inc()
		return nil, errors.Transient(op+" reading response", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		metrics.PlatformCallsTotal.WithLabelValues(op, "ok").Inc()
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized:
		metrics.PlatformCallsTotal.WithLabelValues(op, "error").Inc()
		return nil, errors.InvalidCredentials(op+" rejected", nil)
	case resp.StatusCode == 420 || resp.StatusCode == http.StatusTooManyRequests:
		metrics.PlatformCallsTotal.WithLabelValues(op, "error").Inc()
		return nil, errors.Transient(fmt.Sprintf("%s platform rate limited (status %d)", op, resp.StatusCode), nil)
	case resp.StatusCode >= 500:
		metrics.PlatformCallsTotal.WithLabelValues(op, "error").Inc()
		return nil, errors.Transient(fmt.Sprintf("%s server error (status %d)", op, resp.StatusCode), nil)
	default:
		metrics.PlatformCallsTotal.WithLabelValues(op, "error").Inc()
		return nil, fmt.Errorf("%s unexpected status %d", op, resp.StatusCode)
	}
}

func (c *Client) PostStatus(ctx context.Context, text string) error {
	form := url.Values{"status": {text}}
	_, err := c.do(ctx, "post_status", http.MethodPost, "/statuses/update.json", form)
	return err
}

func (c *Client) SendDirectMessage(ctx context.Context, userID int64, text string) error {
	form := url.Values{
		"user_id": {strconv.FormatInt(userID, 10)},
		"text":    {text},
	}
	_, err := c.do(ctx, "send_dm", http.MethodPost, "/direct_messages/new.json", form)
	return err
}

func (c *Client) DestroyDirectMessage(ctx context.Context, messageID string) error {
	form := url.Values{"id": {messageID}}
	_, err := c.do(ctx, "destroy_dm", http.MethodPost, "/direct_messages/destroy.json", form)
	return err
}

func (c *Client) DestroyStatus(ctx context.Context, statusID string) error {
	_, err := c.do(ctx, "destroy_status", http.MethodPost, "/statuses/destroy/"+statusID+".json", url.Values{})
	return err
}

func (c *Client) CreateFriendship(ctx context.Context, userID int64) error {
	form := url.Values{"user_id": {strconv.FormatInt(userID, 10)}}
	_, err := c.do(ctx, "create_friendship", http.MethodPost, "/friendships/create.json", form)
	return err
}

func (c *Client) DestroyFriendship(ctx context.Context, userID int64) error {
	form := url.Values{"user_id": {strconv.FormatInt(userID, 10)}}
	_, err := c.do(ctx, "destroy_friendship", http.MethodPost, "/friendships/destroy.json", form)
	return err
}

func (c *Client) UpdateFriendship(ctx context.Context, userID int64, settings domain.FriendshipSettings) error {
	form := url.Values{
		"user_id":  {strconv.FormatInt(userID, 10)},
		"device":   {strconv.FormatBool(settings.Notifications)},
		"retweets": {strconv.FormatBool(settings.Retweets)},
	}
	_, err := c.do(ctx, "update_friendship", http.MethodPost, "/friendships/update.json", form)
	return err
}

type friendshipEntry struct {
	ScreenName  string   `json:"screen_name"`
	Connections []string `json:"connections"`
}

var lookupPolicy = retry.Policy{
	MaxAttempts:      2,
	InitialBackoff:   500 * time.Millisecond,
	RateLimitBackoff: 2 * time.Second,
}

func classifyLookup(err error) retry.Action {
	switch errors.KindOf(err) {
	case errors.KindTransient:
		return retry.Retry
	default:
		return retry.Stop
	}
}

// LookupFriendship reports whether the identity follows the bot back. The
// lookup is read-only, so one transient failure is retried before giving up.
func (c *Client) LookupFriendship(ctx context.Context, userID int64) (domain.Friendship, error) {
	form := url.Values{"user_id": {strconv.FormatInt(userID, 10)}}

	body, err := retry.Do(ctx, c.clock, lookupPolicy, classifyLookup, func() ([]byte, error) {
		return c.do(ctx, "lookup_friendship", http.MethodGet, "/friendships/lookup.json", form)
	})
	if err != nil {
		return domain.Friendship{}, err
	}

	var entries []friendshipEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return domain.Friendship{}, fmt.Errorf("parsing friendship lookup: %w", err)
	}
	if len(entries) == 0 {
		return domain.Friendship{}, fmt.Errorf("friendship lookup returned no entries for user %d", userID)
	}

	f := domain.Friendship{ScreenName: entries[0].ScreenName}
	for _, conn := range entries[0].Connections {
		if conn == "followed_by" {
			f.FollowsBack = true
			break
		}
	}
	return f, nil
}
