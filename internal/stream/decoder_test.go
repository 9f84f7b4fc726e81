package stream

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/zhengjr9/admin-chat/internal/errors"
)

const mixedText = "Hello, 世界! Grüße 👋🏽 ✓ ok\n部门 employees"

func decodeChunks(t *testing.T, chunks [][]byte) string {
	t.Helper()
	var (
		d  Decoder
		sb strings.Builder
	)
	for _, c := range chunks {
		s, err := d.Decode(c)
		require.NoError(t, err)
		sb.WriteString(s)
	}
	require.NoError(t, d.Flush())
	return sb.String()
}

func TestDecoder_EveryTwoWaySplit(t *testing.T) {
	raw := []byte(mixedText)
	for i := 0; i <= len(raw); i++ {
		got := decodeChunks(t, [][]byte{raw[:i], raw[i:]})
		require.Equal(t, mixedText, got, "split at %d", i)
	}
}

func TestDecoder_RandomSplits(t *testing.T) {
	raw := []byte(strings.Repeat(mixedText, 8))
	rng := rand.New(rand.NewPCG(1, 2))
	for round := 0; round < 200; round++ {
		var chunks [][]byte
		for rest := raw; len(rest) > 0; {
			n := rng.IntN(7)
			if n > len(rest) {
				n = len(rest)
			}
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}
		require.Equal(t, string(raw), decodeChunks(t, chunks), "round %d", round)
	}
}

func TestDecoder_ByteAtATime(t *testing.T) {
	var d Decoder
	var frags []string
	for _, b := range []byte("é👋") {
		s, err := d.Decode([]byte{b})
		require.NoError(t, err)
		if s != "" {
			frags = append(frags, s)
		}
	}
	assert.Equal(t, []string{"é", "👋"}, frags)
	assert.Zero(t, d.Pending())
}

func TestDecoder_EmptyInput(t *testing.T) {
	var d Decoder
	s, err := d.Decode(nil)
	require.NoError(t, err)
	assert.Empty(t, s)
}

func TestDecoder_CarriesIncompleteTail(t *testing.T) {
	var d Decoder
	s, err := d.Decode([]byte("ab\xe4\xb8"))
	require.NoError(t, err)
	assert.Equal(t, "ab", s)
	assert.Equal(t, 2, d.Pending())

	s, err = d.Decode([]byte("\x96c"))
	require.NoError(t, err)
	assert.Equal(t, "世c", s)
}

func TestDecoder_Malformed(t *testing.T) {
	cases := map[string][]byte{
		"invalid lead byte":    []byte("ok\xff"),
		"bad continuation":     []byte("\xe4\x41\x41"),
		"overlong":             []byte("\xc0\xaf"),
		"surrogate":            []byte("\xed\xa0\x80"),
		"beyond max":           []byte("\xf5\x80\x80\x80"),
		"stray continuation":   []byte("\x80"),
		"truncated then ascii": []byte("\xe4\xb8a"),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			var d Decoder
			_, err := d.Decode(in)
			require.ErrorIs(t, err, apierrors.ErrMalformedText)
			assert.Zero(t, d.Pending())
		})
	}
}

func TestDecoder_MalformedKeepsValidPrefix(t *testing.T) {
	var d Decoder
	s, err := d.Decode([]byte("ok\xff"))
	require.ErrorIs(t, err, apierrors.ErrMalformedText)
	assert.Equal(t, "ok", s)
}

func TestDecoder_MalformedOffsetAdvances(t *testing.T) {
	var d Decoder
	_, err := d.Decode([]byte("ab\xff"))
	require.ErrorIs(t, err, apierrors.ErrMalformedText)
	assert.Contains(t, err.Error(), "at byte 2")

	s, err := d.Decode([]byte("cd\xff"))
	require.ErrorIs(t, err, apierrors.ErrMalformedText)
	assert.Equal(t, "cd", s)
	assert.Contains(t, err.Error(), "at byte 4")
}

func TestDecoder_ReplacementCharIsValid(t *testing.T) {
	var d Decoder
	s, err := d.Decode([]byte("\xef\xbf\xbd"))
	require.NoError(t, err)
	assert.Equal(t, "�", s)
}

func TestDecoder_FlushWithPendingBytes(t *testing.T) {
	var d Decoder
	s, err := d.Decode([]byte("x\xf0\x9f"))
	require.NoError(t, err)
	assert.Equal(t, "x", s)
	require.ErrorIs(t, d.Flush(), apierrors.ErrMalformedText)
	assert.Zero(t, d.Pending())
}
