package handshake

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, f Frame) Frame {
	t.Helper()
	b, err := EncodeFrame(f)
	require.NoError(t, err)
	size, ok := FrameSize(f.Tag())
	if ok {
		require.Len(t, b, size)
	} else {
		require.True(t, IsTerminationSignal(f.Tag()))
		require.Len(t, b, 1)
	}
	got, err := DecodeFrame(b)
	require.NoError(t, err)
	return got
}

func TestHandshakeRequestEncodeExactBytes(t *testing.T) {
	var pk [20]byte
	for i := range pk {
		pk[i] = 1
	}
	req := HandshakeRequest{
		Version:         0,
		CompressionSet:  0,
		ResumeLane:      NoResumeLane,
		ClientPublicKey: pk,
	}
	b, err := EncodeFrame(req)
	require.NoError(t, err)
	require.Len(t, b, 33)
	require.Equal(t, byte(0x01), b[0])
	require.Equal(t, []byte("LIGHTNING"), b[1:10])
	require.Equal(t, byte(0x00), b[10])
	require.Equal(t, byte(0x00), b[11])
	require.Equal(t, byte(0xFF), b[12])
	require.Equal(t, pk[:], b[13:33])
}

func TestFrameRoundTrips(t *testing.T) {
	var pk20 [20]byte
	var pk96, sig96 [96]byte
	for i := range pk96 {
		pk96[i] = byte(i)
		sig96[i] = byte(255 - i)
	}

	cases := []Frame{
		HandshakeRequest{Version: 1, CompressionSet: CompressionSnappy | CompressionLz4, ResumeLane: 3, ClientPublicKey: pk20},
		HandshakeResponse{Lane: 5, NodePublicKey: pk96, Nonce: 12345},
		HandshakeResponseUnlock{Lane: 7, NodePublicKey: pk96, Nonce: 99, LastServiceID: 42, LastBytes: 1000, LastSignature: sig96},
		DeliveryAcknowledgement{ClientSignature: sig96},
		ServiceRequest{ServiceID: 7},
		TerminationSignal{Reason: ReasonOutOfLanes},
	}
	for _, c := range cases {
		got := roundTrip(t, c)
		require.Equal(t, c, got)
	}
}

func TestIsTerminationSignalExhaustive(t *testing.T) {
	for b := 0; b <= 0xFF; b++ {
		want := byte(b)&TerminationFlag == TerminationFlag
		require.Equal(t, want, IsTerminationSignal(byte(b)))
	}
}

func TestTagFilterRejection(t *testing.T) {
	var buf bytes.Buffer
	req := HandshakeRequest{Version: 0, CompressionSet: 0, ResumeLane: NoResumeLane}
	b, err := EncodeFrame(req)
	require.NoError(t, err)
	buf.Write(b)

	var out bytes.Buffer
	conn := NewConnectionRW(&buf, &out)
	filter := TagHandshakeResponse | TagHandshakeResponseUnlock
	_, err = conn.ReadFrame(filter)
	require.Error(t, err)
	require.Equal(t, []byte{0x80}, out.Bytes())
}

func TestCompressionSetInsertRemoveContains(t *testing.T) {
	var s CompressionSet
	require.True(t, s.Contains(0)) // Uncompressed always in the set
	require.False(t, s.Contains(CompressionGzip))

	s = s.Insert(CompressionGzip)
	require.True(t, s.Contains(CompressionGzip))
	require.True(t, s.Contains(0))

	s = s.Remove(CompressionGzip)
	require.False(t, s.Contains(CompressionGzip))
	require.True(t, s.Contains(0))
}

func TestConnectionReadWriteFrame(t *testing.T) {
	var buf bytes.Buffer
	conn := NewConnectionRW(&buf, &buf)
	req := HandshakeRequest{Version: 0, CompressionSet: CompressionSnappy, ResumeLane: NoResumeLane}
	require.NoError(t, conn.WriteFrame(req))

	got, err := conn.ReadFrame(0)
	require.NoError(t, err)
	require.Equal(t, req, got)
}

func TestTagFilterRejectionRaisesBanScore(t *testing.T) {
	var buf bytes.Buffer
	req := HandshakeRequest{Version: 0, CompressionSet: 0, ResumeLane: NoResumeLane}
	b, err := EncodeFrame(req)
	require.NoError(t, err)
	buf.Write(b)

	var out bytes.Buffer
	conn := NewConnectionRW(&buf, &out)
	require.Equal(t, 0, conn.BanScore(time.Now()))

	filter := TagHandshakeResponse | TagHandshakeResponseUnlock
	_, err = conn.ReadFrame(filter)
	require.Error(t, err)

	now := time.Now()
	require.Equal(t, ReasonBanDelta(ReasonCodecViolation), conn.BanScore(now))
	require.False(t, conn.ShouldBan(now), "a single violation should not cross the ban threshold")
}

func TestRepeatedCodecViolationsCrossBanThreshold(t *testing.T) {
	var buf bytes.Buffer
	var out bytes.Buffer
	conn := NewConnectionRW(&buf, &out)

	now := time.Now()
	for i := 0; i*ReasonBanDelta(ReasonCodecViolation) < BanThreshold; i++ {
		conn.violate(ReasonCodecViolation)
	}
	require.True(t, conn.ShouldBan(now))
}

func TestLaneTableAllocateResumeRelease(t *testing.T) {
	lt := NewLaneTable()
	var pubkey [20]byte
	pubkey[0] = 9

	lane, err := lt.Allocate(pubkey)
	require.NoError(t, err)

	_, ok := lt.Resume(lane, pubkey)
	require.True(t, ok)

	var otherKey [20]byte
	otherKey[0] = 1
	_, ok = lt.Resume(lane, otherKey)
	require.False(t, ok)

	require.NoError(t, lt.Update(lane, LastLaneData{Bytes: 100, ServiceID: 1}))
	data, ok := lt.Resume(lane, pubkey)
	require.True(t, ok)
	require.Equal(t, uint64(100), data.Bytes)

	lt.Release(lane)
	_, ok = lt.Resume(lane, pubkey)
	require.False(t, ok)
}

func TestLaneTableOutOfLanes(t *testing.T) {
	lt := NewLaneTable()
	for i := 0; i < MaxLanes; i++ {
		var pk [20]byte
		pk[0] = byte(i)
		_, err := lt.Allocate(pk)
		require.NoError(t, err)
	}
	var pk [20]byte
	pk[0] = 255
	_, err := lt.Allocate(pk)
	require.Error(t, err)
}
