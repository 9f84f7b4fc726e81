package stream

import (
	"fmt"
	"unicode/utf8"

	apierrors "github.com/zhengjr9/admin-chat/internal/errors"
)

// Decoder turns arbitrarily split UTF-8 bytes into whole text.
// An incomplete trailing sequence is carried over to the next call.
// The zero value is ready to use. A Decoder belongs to a single read loop.
type Decoder struct {
	carry    []byte
	consumed int64
}

// Decode returns the longest valid prefix of carry+p as text. The result may
// be empty. Bytes that can never form valid UTF-8 yield ErrMalformedText
// along with the valid text that preceded them.
func (d *Decoder) Decode(p []byte) (string, error) {
	if len(p) == 0 {
		return "", nil
	}
	buf := p
	if len(d.carry) > 0 {
		buf = make([]byte, 0, len(d.carry)+len(p))
		buf = append(buf, d.carry...)
		buf = append(buf, p...)
	}

	i := 0
	for i < len(buf) {
		if buf[i] < utf8.RuneSelf {
			i++
			continue
		}
		r, size := utf8.DecodeRune(buf[i:])
		if r == utf8.RuneError && size == 1 {
			if !utf8.FullRune(buf[i:]) {
				// incomplete but still possibly valid; wait for more bytes
				break
			}
			d.carry = d.carry[:0]
			offset := d.consumed + int64(i)
			d.consumed += int64(i)
			return string(buf[:i]), fmt.Errorf("%w at byte %d", apierrors.ErrMalformedText, offset)
		}
		i += size
	}

	d.carry = append(d.carry[:0], buf[i:]...)
	d.consumed += int64(i)
	return string(buf[:i]), nil
}

// Flush reports an error if the stream ended inside a multi-byte sequence.
func (d *Decoder) Flush() error {
	if len(d.carry) == 0 {
		return nil
	}
	n := len(d.carry)
	d.carry = d.carry[:0]
	return fmt.Errorf("%w: stream ended with %d byte(s) of an incomplete sequence", apierrors.ErrMalformedText, n)
}

// Pending is the number of carried-over bytes.
func (d *Decoder) Pending() int {
	return len(d.carry)
}
