package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/substitwt/recaster/internal/domain"
	"github.com/substitwt/recaster/internal/errors"
)

const defaultVerifyInterval = 30 * time.Minute

type accountReply struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	ScreenName  string `json:"screen_name"`
	Description string `json:"description"`
}

// VerifyCredentials confirms the configured credentials and returns the
// bot's own identity.
func (c *Client) VerifyCredentials(ctx context.Context) (domain.BotIdentity, error) {
	body, err := c.do(ctx, "verify_credentials", http.MethodGet, "/account/verify_credentials.json", nil)
	if err != nil {
		return domain.BotIdentity{}, err
	}

	var reply accountReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return domain.BotIdentity{}, fmt.Errorf("parsing credentials reply: %w", err)
	}
	if reply.ID == 0 {
		return domain.BotIdentity{}, errors.InvalidCredentials("credentials reply missing account id", nil)
	}

	return domain.BotIdentity{
		ID:          reply.ID,
		Name:        reply.Name,
		ScreenName:  reply.ScreenName,
		Description: reply.Description,
	}, nil
}

// Verifier re-checks the bot's credentials on a fixed interval and keeps the
// captured identity in the shared app state. A failed re-verification is
// fatal: running with a stale identity is worse than stopping.
type Verifier struct {
	client   *Client
	state    *domain.AppState
	clock    clockwork.Clock
	interval time.Duration
}

func NewVerifier(client *Client, state *domain.AppState, clock clockwork.Clock) *Verifier {
	return &Verifier{
		client:   client,
		state:    state,
		clock:    clock,
		interval: defaultVerifyInterval,
	}
}

// VerifyOnce performs a single verification and stores the identity.
func (v *Verifier) VerifyOnce(ctx context.Context) error {
	identity, err := v.client.VerifyCredentials(ctx)
	if err != nil {
		return err
	}
	v.state.SetIdentity(identity)
	slog.Info("Credentials verified", "user_id", identity.ID, "screen_name", identity.ScreenName)
	return nil
}

// Run blocks, re-verifying on every tick until ctx is cancelled or a
// verification fails. The returned error is nil only on cancellation.
func (v *Verifier) Run(ctx context.Context) error {
	ticker := v.clock.NewTicker(v.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if err := v.VerifyOnce(ctx); err != nil {
				return err
			}
		}
	}
}
