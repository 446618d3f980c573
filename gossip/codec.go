// Package gossip adapts a go-libp2p-pubsub subscription to the
// consensuspipeline.PubSub capability: messages on the wire are a
// small self-describing tagged union (Batch or Certificate), encoded
// with the same wireutil cursor-based primitives the handshake codec
// uses.
package gossip

import (
	"fmt"

	"github.com/pineappleworkshop/lightning/batchpool"
	"github.com/pineappleworkshop/lightning/consensuspipeline"
	"github.com/pineappleworkshop/lightning/wireutil"
)

const (
	tagBatch       byte = 0x00
	tagCertificate byte = 0x01
)

// EncodeBatch builds the wire bytes for a Batch message.
func EncodeBatch(digest consensuspipeline.BatchDigest, batch []byte) []byte {
	out := make([]byte, 0, 1+len(digest)+4+len(batch))
	out = append(out, tagBatch)
	out = append(out, digest[:]...)
	out = wireutil.AppendU32LE(out, uint32(len(batch)))
	out = append(out, batch...)
	return out
}

// EncodeCertificate builds the wire bytes for a Certificate message.
func EncodeCertificate(c consensuspipeline.Certificate) []byte {
	out := make([]byte, 0, 128)
	out = append(out, tagCertificate)
	out = wireutil.AppendU64LE(out, c.Round)
	out = wireutil.AppendU32LE(out, uint32(len(c.Author)))
	out = append(out, []byte(c.Author)...)

	out = wireutil.AppendU32LE(out, uint32(len(c.Digests)))
	for _, d := range c.Digests {
		out = append(out, d[:]...)
	}

	out = wireutil.AppendU32LE(out, uint32(len(c.Parents)))
	for _, p := range c.Parents {
		out = wireutil.AppendU64LE(out, p.Round)
		out = wireutil.AppendU32LE(out, uint32(len(p.Author)))
		out = append(out, []byte(p.Author)...)
	}

	out = wireutil.AppendU32LE(out, uint32(len(c.Signature)))
	out = append(out, c.Signature...)
	return out
}

// Decode parses the wire bytes produced by EncodeBatch/EncodeCertificate
// into a PubSubMessage. Unrecognized tags are returned as a zero-value
// message with no error, matching the "other messages are ignored"
// contract.
func Decode(b []byte) (consensuspipeline.PubSubMessage, error) {
	if len(b) == 0 {
		return consensuspipeline.PubSubMessage{}, fmt.Errorf("gossip: empty message")
	}
	cur := wireutil.NewCursor(b[1:])
	switch b[0] {
	case tagBatch:
		digestBytes, err := cur.ReadExact(32)
		if err != nil {
			return consensuspipeline.PubSubMessage{}, err
		}
		n, err := cur.ReadU32LE()
		if err != nil {
			return consensuspipeline.PubSubMessage{}, err
		}
		payload, err := cur.ReadExact(int(n))
		if err != nil {
			return consensuspipeline.PubSubMessage{}, err
		}
		var digest consensuspipeline.BatchDigest
		copy(digest[:], digestBytes)
		if want := batchpool.DigestBatch(payload); digest != want {
			return consensuspipeline.PubSubMessage{}, fmt.Errorf("gossip: batch digest mismatch: claimed %x, computed %x", digest, want)
		}
		return consensuspipeline.PubSubMessage{Batch: payload, BatchDigest: digest}, nil

	case tagCertificate:
		c, err := decodeCertificate(cur)
		if err != nil {
			return consensuspipeline.PubSubMessage{}, err
		}
		return consensuspipeline.PubSubMessage{Certificate: &c}, nil

	default:
		return consensuspipeline.PubSubMessage{}, nil
	}
}

func decodeCertificate(cur *wireutil.Cursor) (consensuspipeline.Certificate, error) {
	var c consensuspipeline.Certificate

	round, err := cur.ReadU64LE()
	if err != nil {
		return c, err
	}
	c.Round = round

	author, err := readString(cur)
	if err != nil {
		return c, err
	}
	c.Author = author

	nDigests, err := cur.ReadU32LE()
	if err != nil {
		return c, err
	}
	c.Digests = make([]consensuspipeline.BatchDigest, nDigests)
	for i := range c.Digests {
		b, err := cur.ReadExact(32)
		if err != nil {
			return c, err
		}
		copy(c.Digests[i][:], b)
	}

	nParents, err := cur.ReadU32LE()
	if err != nil {
		return c, err
	}
	c.Parents = make([]consensuspipeline.CertificateID, nParents)
	for i := range c.Parents {
		r, err := cur.ReadU64LE()
		if err != nil {
			return c, err
		}
		a, err := readString(cur)
		if err != nil {
			return c, err
		}
		c.Parents[i] = consensuspipeline.CertificateID{Round: r, Author: a}
	}

	sigLen, err := cur.ReadU32LE()
	if err != nil {
		return c, err
	}
	sig, err := cur.ReadExact(int(sigLen))
	if err != nil {
		return c, err
	}
	c.Signature = sig
	return c, nil
}

func readString(cur *wireutil.Cursor) (string, error) {
	n, err := cur.ReadU32LE()
	if err != nil {
		return "", err
	}
	b, err := cur.ReadExact(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
