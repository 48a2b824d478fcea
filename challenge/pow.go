package challenge

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DefaultMaxIterations bounds the proof-of-work search. Observed difficulties
// are 2-4; four hex zeros need ~65k attempts on average, so this bound is
// generous without risking an unbounded spin on a garbage difficulty.
const DefaultMaxIterations = 1 << 22

// maxDifficulty is the full digest length in hex characters. The parameters
// come from an untrusted response, so anything outside 0..maxDifficulty is
// rejected rather than fed to the search.
const maxDifficulty = sha256.Size * 2

// ctxCheckInterval is how often the search polls for cancellation.
const ctxCheckInterval = 4096

// proof is a found proof-of-work solution.
type proof struct {
	Key      string `json:"key"`
	Nonce    string `json:"nonce"`
	Solution int    `json:"solution"`
	Hash     string `json:"hash"`
}

// searchPow iterates a counter through sha256(key || nonce || counter) until
// the digest carries difficulty leading zero hex characters, bounded by
// maxIterations.
func searchPow(ctx context.Context, p *Params, maxIterations int) (proof, error) {
	if p.Difficulty < 0 || p.Difficulty > maxDifficulty {
		return proof{}, fmt.Errorf("%w: difficulty %d out of range", ErrUnsupported, p.Difficulty)
	}
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	prefix := strings.Repeat("0", p.Difficulty)
	base := p.Key + p.Nonce

	for counter := 0; counter < maxIterations; counter++ {
		if counter%ctxCheckInterval == 0 && ctx.Err() != nil {
			return proof{}, ctx.Err()
		}
		sum := sha256.Sum256([]byte(base + strconv.Itoa(counter)))
		digest := hex.EncodeToString(sum[:])
		if strings.HasPrefix(digest, prefix) {
			return proof{
				Key:      p.Key,
				Nonce:    p.Nonce,
				Solution: counter,
				Hash:     digest,
			}, nil
		}
	}
	return proof{}, ErrExhausted
}

// packageToken serializes a proof into the token format the gate accepts.
func packageToken(pr proof) string {
	b, _ := json.Marshal(pr)
	return base64.RawURLEncoding.EncodeToString(b)
}
