package handshake

import (
	"io"
	"time"

	"github.com/pineappleworkshop/lightning/lightningerr"
)

// Connection wraps a bidirectional byte stream with the handshake
// frame codec: accumulate-then-parse reads, a tag-filter bitmap that
// rejects unexpected frames with a best-effort termination signal, and
// write helpers for every frame type. Every termination signal that
// ReadFrame emits on a protocol violation also feeds the connection's
// BanScore (TerminationSignal called directly does not), so a caller driving many
// connections can decide to throttle or drop one that keeps violating
// the protocol.
type Connection struct {
	r   io.Reader
	w   io.Writer
	buf []byte

	ban BanScore
}

func NewConnection(rw io.ReadWriter) *Connection {
	return &Connection{r: rw, w: rw, buf: make([]byte, 0, 179)}
}

func NewConnectionRW(r io.Reader, w io.Writer) *Connection {
	return &Connection{r: r, w: w, buf: make([]byte, 0, 179)}
}

// BanScore returns the connection's current severity score, after
// applying time-based decay up to now.
func (c *Connection) BanScore(now time.Time) int {
	return c.ban.Score(now)
}

// ShouldBan reports whether the connection has accumulated enough
// CodecViolation/termination severity to be dropped outright.
func (c *Connection) ShouldBan(now time.Time) bool {
	return c.ban.ShouldBan(now)
}

// ShouldThrottle reports whether the connection has accumulated enough
// severity to be rate-limited but not yet dropped.
func (c *Connection) ShouldThrottle(now time.Time) bool {
	return c.ban.ShouldThrottle(now)
}

// WriteFrame encodes and writes f.
func (c *Connection) WriteFrame(f Frame) error {
	b, err := EncodeFrame(f)
	if err != nil {
		return err
	}
	if _, err := c.w.Write(b); err != nil {
		return lightningerr.New(lightningerr.Io, "write frame", err)
	}
	return nil
}

// TerminationSignal writes a termination signal for reason. Its result
// is meant to be used best-effort by callers reacting to a protocol
// violation: they should not let a failure here mask the original
// error.
func (c *Connection) TerminationSignal(reason Reason) error {
	return c.WriteFrame(TerminationSignal{Reason: reason})
}

// violate writes a best-effort termination signal for reason and
// records its severity against the connection's BanScore.
func (c *Connection) violate(reason Reason) {
	c.ban.Add(time.Now(), ReasonBanDelta(reason))
	_ = c.TerminationSignal(reason) // best-effort; error intentionally discarded
}

// ReadFrame reads exactly one frame. If filter is non-zero, any
// received content tag not present in the bitmap causes a best-effort
// CodecViolation termination signal (its result discarded) and
// InvalidData-equivalent error.
func (c *Connection) ReadFrame(filter byte) (Frame, error) {
	tag, err := c.peekTag()
	if err != nil {
		return nil, err
	}

	if filter != 0 && !IsTerminationSignal(tag) && tag&filter != tag {
		c.violate(ReasonCodecViolation)
		return nil, lightningerr.New(lightningerr.CodecViolation, "frame tag rejected by filter", nil)
	}

	size := 1
	if !IsTerminationSignal(tag) {
		n, ok := FrameSize(tag)
		if !ok {
			c.violate(ReasonCodecViolation)
			return nil, lightningerr.New(lightningerr.CodecViolation, "invalid tag", nil)
		}
		size = n
	}

	for len(c.buf) < size {
		n, err := c.fillOnce()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, lightningerr.New(lightningerr.ShortRead, "connection closed mid-frame", nil)
		}
	}

	frameBytes := append([]byte(nil), c.buf[:size]...)
	c.buf = c.buf[size:]

	frame, err := DecodeFrame(frameBytes)
	if err != nil {
		c.violate(ReasonCodecViolation)
		return nil, err
	}
	return frame, nil
}

func (c *Connection) peekTag() (byte, error) {
	for len(c.buf) < 1 {
		n, err := c.fillOnce()
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, lightningerr.New(lightningerr.ShortRead, "connection closed", nil)
		}
	}
	return c.buf[0], nil
}

func (c *Connection) fillOnce() (int, error) {
	var tmp [MaxFrameSize]byte
	n, err := c.r.Read(tmp[:])
	if n > 0 {
		c.buf = append(c.buf, tmp[:n]...)
	}
	if err != nil {
		if err == io.EOF {
			return n, nil
		}
		return n, lightningerr.New(lightningerr.Io, "read frame bytes", err)
	}
	return n, nil
}
