// Package challenge satisfies the edge network's bot-detection gate without a
// browser or JavaScript runtime.
//
// The gate interposes an interstitial in front of the API. Most issuances are
// proof-of-work: the interstitial supplies a nonce, a key id and a difficulty,
// and accepts any request carrying a token derived from a hash search over
// those parameters. Some issuances additionally embed a visual puzzle; those
// are delegated to an injected CaptchaSolver capability.
package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"time"
)

var (
	// ErrExhausted is returned when the proof-of-work search hits its
	// iteration bound without finding a solution.
	ErrExhausted = errors.New("challenge: proof-of-work search exhausted")

	// ErrUnsupported is returned when the response shape matches no known
	// resolution strategy.
	ErrUnsupported = errors.New("challenge: unsupported challenge shape")

	// ErrDelegationFailed is returned when the external solving capability
	// produced no usable answer.
	ErrDelegationFailed = errors.New("challenge: delegated solve failed")
)

// Params are the parameters extracted from one challenge issuance.
type Params struct {
	// Nonce is the server-supplied random input to the hash search.
	Nonce string `json:"nonce"`

	// Difficulty is the number of leading zero hex characters the solution
	// digest must carry.
	Difficulty int `json:"difficulty"`

	// Key identifies the signing key epoch on the gate side.
	Key string `json:"key"`

	// VerifyURL, when present, is where the packaged solution is exchanged
	// for the final token instead of being presented directly.
	VerifyURL string `json:"apiUrl"`

	// Puzzle is set when the issuance embeds an interactive puzzle that
	// cannot be computed statically.
	Puzzle *Puzzle `json:"puzzle"`
}

// Puzzle is an interactive challenge payload handed to a CaptchaSolver.
type Puzzle struct {
	Kind string `json:"type"`
	URL  string `json:"url"`
	Data []byte `json:"data"`
}

// Token is one solved challenge token bound to a scope.
type Token struct {
	Value      string
	AcquiredAt time.Time
	Scope      string
}

// CaptchaSolver is the injectable capability for puzzles this package cannot
// compute. Implementations typically bridge to a human or a paid service.
type CaptchaSolver interface {
	Solve(ctx context.Context, puzzle *Puzzle) (string, error)
}

// Inline interstitial pages carry the same parameters as the JSON shape,
// embedded in a renderCaptcha() call. The loose quoting matches what the
// edge actually serves.
var (
	nonceRe      = regexp.MustCompile(`["']?nonce["']?\s*:\s*["']([^"']+)["']`)
	difficultyRe = regexp.MustCompile(`["']?difficulty["']?\s*:\s*(\d+)`)
	keyRe        = regexp.MustCompile(`["']?key["']?\s*:\s*["']([^"']+)["']`)
	apiURLRe     = regexp.MustCompile(`["']?apiUrl["']?\s*:\s*["']([^"']+)["']`)
)

// ParseParams extracts challenge parameters from a response body classified
// as challenge-required. JSON bodies are preferred; HTML interstitials fall
// back to pattern extraction. Returns ErrUnsupported when neither yields a
// solvable shape.
func ParseParams(body []byte) (*Params, error) {
	var p Params
	if err := json.Unmarshal(body, &p); err == nil {
		// A well-formed JSON body is authoritative; falling back to pattern
		// extraction here would let a rejected difficulty sneak back in as
		// zero.
		if p.solvable() {
			return &p, nil
		}
		return nil, ErrUnsupported
	}

	p = Params{}
	if m := nonceRe.FindSubmatch(body); m != nil {
		p.Nonce = string(m[1])
	}
	if m := difficultyRe.FindSubmatch(body); m != nil {
		p.Difficulty, _ = strconv.Atoi(string(m[1]))
	}
	if m := keyRe.FindSubmatch(body); m != nil {
		p.Key = string(m[1])
	}
	if m := apiURLRe.FindSubmatch(body); m != nil {
		p.VerifyURL = string(m[1])
	}
	if p.solvable() {
		return &p, nil
	}
	return nil, ErrUnsupported
}

func (p *Params) solvable() bool {
	if p.Difficulty < 0 || p.Difficulty > maxDifficulty {
		return false
	}
	return p.Nonce != "" || p.Puzzle != nil
}
