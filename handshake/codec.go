package handshake

import (
	"encoding/binary"

	"github.com/pineappleworkshop/lightning/lightningerr"
	"github.com/pineappleworkshop/lightning/wireutil"
)

// EncodeFrame serializes f to its exact wire size.
func EncodeFrame(f Frame) ([]byte, error) {
	switch v := f.(type) {
	case HandshakeRequest:
		out := make([]byte, 0, 33)
		out = append(out, TagHandshakeRequest)
		out = append(out, Network[:]...)
		out = append(out, v.Version, byte(v.CompressionSet), v.ResumeLane)
		out = append(out, v.ClientPublicKey[:]...)
		return out, nil

	case HandshakeResponse:
		out := make([]byte, 0, 106)
		out = append(out, TagHandshakeResponse, v.Lane)
		out = append(out, v.NodePublicKey[:]...)
		out = wireutil.AppendU64BE(out, v.Nonce)
		return out, nil

	case HandshakeResponseUnlock:
		out := make([]byte, 0, 214)
		out = append(out, TagHandshakeResponseUnlock, v.Lane)
		out = append(out, v.NodePublicKey[:]...)
		out = wireutil.AppendU64BE(out, v.Nonce)
		var svcID [4]byte
		binary.BigEndian.PutUint32(svcID[:], v.LastServiceID)
		out = append(out, svcID[:]...)
		out = wireutil.AppendU64BE(out, v.LastBytes)
		out = append(out, v.LastSignature[:]...)
		return out, nil

	case DeliveryAcknowledgement:
		out := make([]byte, 0, 97)
		out = append(out, TagDeliveryAcknowledgement)
		out = append(out, v.ClientSignature[:]...)
		return out, nil

	case ServiceRequest:
		out := make([]byte, 0, 5)
		out = append(out, TagServiceRequest)
		var id [4]byte
		binary.BigEndian.PutUint32(id[:], v.ServiceID)
		out = append(out, id[:]...)
		return out, nil

	case TerminationSignal:
		return []byte{byte(v.Reason)}, nil

	default:
		return nil, lightningerr.New(lightningerr.CodecViolation, "unknown frame type", nil)
	}
}

// DecodeFrame parses exactly one frame from b, which must be exactly
// the frame's wire size (the caller determines size from the first
// byte via FrameSize/IsTerminationSignal before calling this).
func DecodeFrame(b []byte) (Frame, error) {
	if len(b) == 0 {
		return nil, lightningerr.New(lightningerr.ShortRead, "empty frame", nil)
	}
	tag := b[0]

	if IsTerminationSignal(tag) {
		reason, err := ReasonFromByte(tag)
		if err != nil {
			return nil, err
		}
		return TerminationSignal{Reason: reason}, nil
	}

	c := wireutil.NewCursor(b[1:])
	switch tag {
	case TagHandshakeRequest:
		magic, err := c.ReadExact(9)
		if err != nil {
			return nil, err
		}
		if [9]byte(magic) != Network {
			return nil, lightningerr.New(lightningerr.CodecViolation, "invalid network magic", nil)
		}
		version, err := c.ReadU8()
		if err != nil {
			return nil, err
		}
		compSet, err := c.ReadU8()
		if err != nil {
			return nil, err
		}
		resumeLane, err := c.ReadU8()
		if err != nil {
			return nil, err
		}
		pk, err := c.ReadExact(20)
		if err != nil {
			return nil, err
		}
		var req HandshakeRequest
		req.Version = version
		req.CompressionSet = CompressionSet(compSet)
		req.ResumeLane = resumeLane
		copy(req.ClientPublicKey[:], pk)
		return req, nil

	case TagHandshakeResponse:
		lane, err := c.ReadU8()
		if err != nil {
			return nil, err
		}
		pk, err := c.ReadExact(96)
		if err != nil {
			return nil, err
		}
		nonce, err := c.ReadU64BE()
		if err != nil {
			return nil, err
		}
		var resp HandshakeResponse
		resp.Lane = lane
		copy(resp.NodePublicKey[:], pk)
		resp.Nonce = nonce
		return resp, nil

	case TagHandshakeResponseUnlock:
		lane, err := c.ReadU8()
		if err != nil {
			return nil, err
		}
		pk, err := c.ReadExact(96)
		if err != nil {
			return nil, err
		}
		nonce, err := c.ReadU64BE()
		if err != nil {
			return nil, err
		}
		svcIDBytes, err := c.ReadExact(4)
		if err != nil {
			return nil, err
		}
		lastBytes, err := c.ReadU64BE()
		if err != nil {
			return nil, err
		}
		sig, err := c.ReadExact(96)
		if err != nil {
			return nil, err
		}
		var resp HandshakeResponseUnlock
		resp.Lane = lane
		copy(resp.NodePublicKey[:], pk)
		resp.Nonce = nonce
		resp.LastServiceID = binary.BigEndian.Uint32(svcIDBytes)
		resp.LastBytes = lastBytes
		copy(resp.LastSignature[:], sig)
		return resp, nil

	case TagDeliveryAcknowledgement:
		sig, err := c.ReadExact(96)
		if err != nil {
			return nil, err
		}
		var ack DeliveryAcknowledgement
		copy(ack.ClientSignature[:], sig)
		return ack, nil

	case TagServiceRequest:
		idBytes, err := c.ReadExact(4)
		if err != nil {
			return nil, err
		}
		return ServiceRequest{ServiceID: binary.BigEndian.Uint32(idBytes)}, nil

	default:
		return nil, lightningerr.New(lightningerr.CodecViolation, "invalid tag", nil)
	}
}
