// Package revert turns the opaque errors returned by eth_estimateGas and
// eth_sendRawTransaction into the small, data-bearing classification the
// scorer and execution packages branch on. Grounded on go-ethereum's own
// rpc.DataError / rpc.Error interfaces (the same interfaces the teacher's
// contractclient.Call unwraps via abi.Unpack failures) rather than string
// sniffing alone, falling back to substring matching for providers that
// don't populate structured error data.
package revert

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// Kind categorizes why a contract call reverted or a send failed.
type Kind int

const (
	// KindOther is an unclassified revert or transport error.
	KindOther Kind = iota
	// KindHFRecovered means the borrower's health factor moved back above
	// the liquidation threshold between candidate scoring and on-chain
	// execution — selector 0x930bb771 (HealthFactorNotBelowThreshold).
	// This is "opportunity gone", not an error.
	KindHFRecovered
	// KindContractRevert is any other on-chain revert, carrying whatever
	// short message / selector the node returned.
	KindContractRevert
	// KindRateLimited is a 429 / "too many requests" / provider throughput
	// error, handled with exponential back-off rather than as a revert.
	KindRateLimited
	// KindTransport is a connection-level failure (timeout, EOF, dial
	// refused) with no structured revert data at all.
	KindTransport
)

// HFNotBelowThresholdSelector is the 4-byte selector of Aave v3's
// HealthFactorNotBelowThreshold() custom error.
const HFNotBelowThresholdSelector = "0x930bb771"

// Classification is the result of Classify.
type Classification struct {
	Kind          Kind
	Selector      string
	ShortMessage  string
	ErrorName     string
	RawErrorData  string
}

// IsRecoverable reports whether the caller should treat this as a skip
// rather than an attempt failure (HF-recovered reverts are not counted
// against the per-chain fail-rate circuit breaker).
func (c Classification) IsRecoverable() bool {
	return c.Kind == KindHFRecovered
}

// Classify inspects err from an eth_estimateGas or eth_sendRawTransaction
// call and returns its Classification. A nil err classifies as the zero
// value with Kind KindOther; callers should check err != nil themselves
// before branching on the result.
func Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	selector, shortMsg, errName := extractRevertData(err)
	if selector == HFNotBelowThresholdSelector {
		return Classification{
			Kind:         KindHFRecovered,
			Selector:     selector,
			ShortMessage: shortMsg,
			ErrorName:    "HealthFactorNotBelowThreshold",
			RawErrorData: msg,
		}
	}
	if errName == "HealthFactorNotBelowThreshold" {
		return Classification{
			Kind:         KindHFRecovered,
			Selector:     HFNotBelowThresholdSelector,
			ShortMessage: shortMsg,
			ErrorName:    errName,
			RawErrorData: msg,
		}
	}

	if isRateLimitMessage(lower) {
		return Classification{Kind: KindRateLimited, ShortMessage: msg, RawErrorData: msg}
	}

	if selector != "" || strings.Contains(lower, "revert") || strings.Contains(lower, "execution reverted") {
		return Classification{
			Kind:         KindContractRevert,
			Selector:     selector,
			ShortMessage: shortMsg,
			ErrorName:    errName,
			RawErrorData: msg,
		}
	}

	return Classification{Kind: KindTransport, ShortMessage: msg, RawErrorData: msg}
}

// extractRevertData pulls a 4-byte selector and short message out of err's
// structured RPC error data, when the RPC provider supplied one.
func extractRevertData(err error) (selector, shortMsg, errName string) {
	var dataErr rpc.DataError
	if !asDataError(err, &dataErr) {
		return "", "", ""
	}

	shortMsg = dataErr.Error()

	data, ok := dataErr.ErrorData().(string)
	if !ok || len(data) < 10 {
		return "", shortMsg, ""
	}

	raw := strings.TrimPrefix(data, "0x")
	if len(raw) < 8 {
		return "", shortMsg, ""
	}
	selBytes, err2 := hex.DecodeString(raw[:8])
	if err2 != nil {
		return "", shortMsg, ""
	}
	return "0x" + hex.EncodeToString(selBytes), shortMsg, ""
}

// asDataError walks err's Unwrap chain looking for an rpc.DataError, since
// go-ethereum sometimes wraps the provider's error before returning it.
func asDataError(err error, target *rpc.DataError) bool {
	for err != nil {
		if de, ok := err.(rpc.DataError); ok {
			*target = de
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

func isRateLimitMessage(lower string) bool {
	switch {
	case strings.Contains(lower, "429"):
		return true
	case strings.Contains(lower, "too many requests"):
		return true
	case strings.Contains(lower, "rate limit"):
		return true
	case strings.Contains(lower, "rate-limited"):
		return true
	case strings.Contains(lower, "throughput"):
		return true
	case strings.Contains(lower, "capacity"):
		return true
	default:
		return false
	}
}
