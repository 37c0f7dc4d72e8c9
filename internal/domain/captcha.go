package domain

import "context"

// Challenge is one fetched captcha: a question and the digests of its
// accepted answers. Answers are never held in plaintext; the service hands
// out md5 digests of the normalized accepted answers.
type Challenge struct {
	Question     string
	AnswerHashes []string
}

// CaptchaSource fetches fresh challenges from the external captcha service.
type CaptchaSource interface {
	Fetch(ctx context.Context) (*Challenge, error)
}
