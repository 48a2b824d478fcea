package challenge

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchPowFindsSolution(t *testing.T) {
	p := &Params{Nonce: "abc", Difficulty: 2, Key: "k1"}

	pr, err := searchPow(context.Background(), p, 0)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(pr.Hash, "00"))

	// The digest must actually derive from key || nonce || counter.
	sum := sha256.Sum256([]byte(p.Key + p.Nonce + strconv.Itoa(pr.Solution)))
	assert.Equal(t, hex.EncodeToString(sum[:]), pr.Hash)
}

func TestSearchPowExhaustsWithinBound(t *testing.T) {
	// An impossible difficulty must hit the iteration bound, not spin.
	p := &Params{Nonce: "abc", Difficulty: 64, Key: "k1"}

	start := time.Now()
	_, err := searchPow(context.Background(), p, 5000)

	assert.ErrorIs(t, err, ErrExhausted)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSearchPowRejectsHostileDifficulty(t *testing.T) {
	// Difficulty arrives from an untrusted response; out-of-range values
	// must be rejected, never passed to the search.
	tests := []struct {
		name       string
		difficulty int
	}{
		{"negative", -1},
		{"very negative", -1 << 30},
		{"past digest length", 65},
		{"absurd", 1 << 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Params{Nonce: "abc", Difficulty: tt.difficulty, Key: "k1"}
			_, err := searchPow(context.Background(), p, 0)
			assert.ErrorIs(t, err, ErrUnsupported)
		})
	}
}

func TestSearchPowHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &Params{Nonce: "abc", Difficulty: 64, Key: "k1"}
	_, err := searchPow(ctx, p, 0)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestPackageTokenShape(t *testing.T) {
	pr := proof{Key: "k1", Nonce: "abc", Solution: 42, Hash: "00beef"}

	raw, err := base64.RawURLEncoding.DecodeString(packageToken(pr))
	require.NoError(t, err)

	var got proof
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, pr, got)
}
