package handshake

import "github.com/pineappleworkshop/lightning/lightningerr"

// Reason is a termination-signal reason code. All reason bytes have bit
// 7 set, matching TerminationFlag.
type Reason byte

const (
	ReasonCodecViolation     Reason = 0x80
	ReasonOutOfLanes         Reason = 0x81
	ReasonServiceNotFound    Reason = 0x82
	ReasonInsufficientBalance Reason = 0x83
	ReasonUnknown            Reason = 0xFF
)

func ReasonFromByte(b byte) (Reason, error) {
	switch Reason(b) {
	case ReasonCodecViolation, ReasonOutOfLanes, ReasonServiceNotFound, ReasonInsufficientBalance, ReasonUnknown:
		return Reason(b), nil
	default:
		if !IsTerminationSignal(b) {
			return 0, lightningerr.New(lightningerr.CodecViolation, "not a termination byte", nil)
		}
		return 0, lightningerr.New(lightningerr.CodecViolation, "invalid termination reason", nil)
	}
}
