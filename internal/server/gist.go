package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/substitwt/recaster/internal/domain"
)

const (
	gistAPIBase      = "https://api.github.com/gists"
	gistMinInterval  = 10 * time.Second
	gistFetchTimeout = 5 * time.Second
)

// GistFetcher pulls the homepage text for the status page from a GitHub
// gist, at most once per interval. Fetch failures keep the previous text;
// the page never blocks on GitHub being down.
type GistFetcher struct {
	gistID   string
	filename string
	state    *domain.AppState
	client   *http.Client
	clock    clockwork.Clock
	apiBase  string

	mu        sync.Mutex
	lastFetch time.Time
	text      string
}

type GistOption func(*GistFetcher)

// WithGistAPIBase overrides the GitHub API endpoint, used by tests.
func WithGistAPIBase(base string) GistOption {
	return func(g *GistFetcher) { g.apiBase = strings.TrimRight(base, "/") }
}

func NewGistFetcher(gistID, filename string, state *domain.AppState, clock clockwork.Clock, opts ...GistOption) *GistFetcher {
	g := &GistFetcher{
		gistID:   gistID,
		filename: filename,
		state:    state,
		client:   &http.Client{Timeout: gistFetchTimeout},
		clock:    clock,
		apiBase:  gistAPIBase,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Text returns the current homepage text, refreshing from the gist when the
// minimum interval has elapsed.
func (g *GistFetcher) Text(ctx context.Context) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	if !g.lastFetch.IsZero() && now.Sub(g.lastFetch) < gistMinInterval {
		return g.text
	}

	fetched, err := g.fetch(ctx)
	if err != nil {
		slog.Warn("Homepage gist fetch failed, keeping previous text", "error", err)
		// Back off for a full interval even on failure.
		g.lastFetch = now
		return g.text
	}

	g.text = g.expand(fetched)
	g.lastFetch = now
	return g.text
}

type gistReply struct {
	Files map[string]struct {
		Content string `json:"content"`
	} `json:"files"`
}

func (g *GistFetcher) fetch(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/%s", g.apiBase, g.gistID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "recaster")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gist fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	var reply gistReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return "", fmt.Errorf("parsing gist reply: %w", err)
	}

	file, ok := reply.Files[g.filename]
	if !ok || file.Content == "" {
		return "", fmt.Errorf("gist has no file %q", g.filename)
	}
	return file.Content, nil
}

// expand substitutes {placeholder} tokens with the bot's current identity.
func (g *GistFetcher) expand(text string) string {
	identity := g.state.Identity()
	r := strings.NewReplacer(
		"{name}", identity.Name,
		"{screen_name}", identity.ScreenName,
		"{description}", identity.Description,
		"{status}", g.state.StreamStatus(),
	)
	return r.Replace(text)
}
