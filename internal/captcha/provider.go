// Package captcha fetches human-verification puzzles from the TextCaptcha
// service and provides the answer normalization used to check replies.
//
// The service returns a question plus the md5 digests of every accepted
// answer, already normalized (trimmed, lower-cased). Digest comparison keeps
// accepted answers out of memory in plaintext; this is a weak safeguard
// against casual leakage, not a security boundary.
package captcha

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/substitwt/recaster/internal/domain"
	"github.com/substitwt/recaster/internal/errors"
	"github.com/substitwt/recaster/internal/metrics"
)

const (
	defaultBaseURL = "http://api.textcaptcha.com"
	fetchTimeout   = 5 * time.Second
)

type Provider struct {
	key     string
	baseURL string
	client  *http.Client
}

type Option func(*Provider)

// WithBaseURL overrides the service endpoint, used by tests.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

func NewProvider(key string, opts ...Option) *Provider {
	p := &Provider{
		key:     key,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: fetchTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type captchaResponse struct {
	XMLName  xml.Name `xml:"captcha"`
	Question string   `xml:"question"`
	Answers  []string `xml:"answer"`
}

// Fetch retrieves a fresh challenge. Transport, HTTP, and parse failures all
// surface as captcha-unavailable errors; the caller is expected to clear any
// pending challenge instead of retry-looping.
func (p *Provider) Fetch(ctx context.Context) (*domain.Challenge, error) {
	url := fmt.Sprintf("%s/%s", p.baseURL, p.key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.CaptchaUnavailable("building captcha request", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		metrics.CaptchaServiceErrorsTotal.Inc()
		return nil, errors.CaptchaUnavailable("captcha service unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		metrics.CaptchaServiceErrorsTotal.Inc()
		return nil, errors.CaptchaUnavailable(
			fmt.Sprintf("captcha service returned status %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		metrics.CaptchaServiceErrorsTotal.Inc()
		return nil, errors.CaptchaUnavailable("reading captcha response", err)
	}

	var parsed captchaResponse
	if err := xml.Unmarshal(body, &parsed); err != nil {
		metrics.CaptchaServiceErrorsTotal.Inc()
		return nil, errors.CaptchaUnavailable("parsing captcha response", err)
	}

	if parsed.Question == "" || len(parsed.Answers) == 0 {
		metrics.CaptchaServiceErrorsTotal.Inc()
		return nil, errors.CaptchaUnavailable("captcha response missing question or answers", nil)
	}

	hashes := make([]string, 0, len(parsed.Answers))
	for _, a := range parsed.Answers {
		hashes = append(hashes, strings.ToLower(strings.TrimSpace(a)))
	}

	return &domain.Challenge{Question: parsed.Question, AnswerHashes: hashes}, nil
}

// NormalizeAnswer applies the canonical form used before hashing: whitespace
// trimmed, case folded.
func NormalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// HashAnswer returns the md5 hex digest of the normalized answer, matching
// the digests published by the captcha service.
func HashAnswer(s string) string {
	sum := md5.Sum([]byte(NormalizeAnswer(s)))
	return hex.EncodeToString(sum[:])
}
