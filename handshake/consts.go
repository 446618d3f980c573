// Package handshake implements the tag-prefixed binary handshake wire
// protocol used to establish a serving session between a client and a
// node: frame encode/decode, the termination-signal convention, and
// per-client lane resumption.
package handshake

import "time"

// Network is the 9-byte magic every HandshakeRequest must carry.
var Network = [9]byte{'L', 'I', 'G', 'H', 'T', 'N', 'I', 'N', 'G'}

const (
	MaxFrameSize = 1024
	MaxLanes     = 24

	// TerminationFlag is bit 7: any tag byte with this bit set is a
	// termination signal, not a content frame.
	TerminationFlag byte = 0b1000_0000
)

// Content frame tags. None has bit 7 set.
const (
	TagHandshakeRequest        byte = 0x01
	TagHandshakeResponse       byte = 0x02
	TagHandshakeResponseUnlock byte = 0x04
	TagDeliveryAcknowledgement byte = 0x08
	TagServiceRequest          byte = 0x10
)

// FrameSize returns the exact wire size for a content tag, or 0 if the
// tag is unknown to this table (termination signals are always 1 byte
// and are not looked up here).
func FrameSize(tag byte) (int, bool) {
	switch tag {
	case TagHandshakeRequest:
		return 33, true
	case TagHandshakeResponse:
		return 106, true
	case TagHandshakeResponseUnlock:
		return 214, true
	case TagDeliveryAcknowledgement:
		return 97, true
	case TagServiceRequest:
		return 5, true
	default:
		return 0, false
	}
}

// IsTerminationSignal reports whether b's bit 7 is set.
func IsTerminationSignal(b byte) bool {
	return b&TerminationFlag == TerminationFlag
}

// NoResumeLane is the resume_lane sentinel meaning "no resumption
// requested".
const NoResumeLane byte = 0xFF

// Compression algorithm bitmap. Canonical layout: each algorithm owns
// one bit of the reserved lower 5 bits of the compression-set byte.
// Uncompressed is not a bit; it's implicitly always a member of every
// set. See DESIGN.md for why this layout was chosen over the source's
// inconsistent shift-based enum.
const (
	CompressionSnappy  byte = 0x01
	CompressionGzip    byte = 0x02
	CompressionBrotli  byte = 0x04
	CompressionLz4     byte = 0x08
	CompressionLzma    byte = 0x10
	compressionSetMask byte = 0x1F
)

type CompressionSet byte

func (s CompressionSet) Contains(algo byte) bool {
	if algo == 0 {
		return true // Uncompressed always considered in the set
	}
	return byte(s)&algo == algo
}

func (s CompressionSet) Insert(algo byte) CompressionSet {
	return CompressionSet(byte(s)&compressionSetMask | algo)
}

func (s CompressionSet) Remove(algo byte) CompressionSet {
	return CompressionSet(byte(s)&compressionSetMask &^ algo)
}

// HandshakeTimeout bounds the wait for a peer's next frame; the codec
// itself imposes no deadline (per design), this is the default used by
// callers that do.
const HandshakeTimeout = 10 * time.Second
