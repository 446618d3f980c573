package wireutil

import "github.com/pineappleworkshop/lightning/lightningerr"

// AppendCompactSize encodes n as a Bitcoin-style CompactSize varint and
// appends it to dst.
func AppendCompactSize(dst []byte, n uint64) []byte {
	switch {
	case n < 0xfd:
		return append(dst, byte(n))
	case n <= 0xffff:
		dst = append(dst, 0xfd)
		return AppendU16LE(dst, uint16(n))
	case n <= 0xffff_ffff:
		dst = append(dst, 0xfe)
		return AppendU32LE(dst, uint32(n))
	default:
		dst = append(dst, 0xff)
		return AppendU64LE(dst, n)
	}
}

func EncodeCompactSize(n uint64) []byte {
	return AppendCompactSize(nil, n)
}

// DecodeCompactSize decodes one CompactSize value from the front of buf
// and returns the value and the number of bytes consumed. Non-minimal
// encodings are rejected as codec violations.
func DecodeCompactSize(buf []byte) (uint64, int, error) {
	c := &Cursor{b: buf}
	tag, err := c.ReadU8()
	if err != nil {
		return 0, 0, err
	}
	switch {
	case tag < 0xfd:
		return uint64(tag), c.pos, nil
	case tag == 0xfd:
		v, err := c.ReadU16LE()
		if err != nil {
			return 0, 0, err
		}
		if v < 0xfd {
			return 0, 0, lightningerr.New(lightningerr.CodecViolation, "non-minimal CompactSize (0xfd)", nil)
		}
		return uint64(v), c.pos, nil
	case tag == 0xfe:
		v, err := c.ReadU32LE()
		if err != nil {
			return 0, 0, err
		}
		if v <= 0xffff {
			return 0, 0, lightningerr.New(lightningerr.CodecViolation, "non-minimal CompactSize (0xfe)", nil)
		}
		return uint64(v), c.pos, nil
	case tag == 0xff:
		v, err := c.ReadU64LE()
		if err != nil {
			return 0, 0, err
		}
		if v <= 0xffff_ffff {
			return 0, 0, lightningerr.New(lightningerr.CodecViolation, "non-minimal CompactSize (0xff)", nil)
		}
		return v, c.pos, nil
	default:
		return 0, 0, lightningerr.New(lightningerr.CodecViolation, "invalid CompactSize tag", nil)
	}
}
