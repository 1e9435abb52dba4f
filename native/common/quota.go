package common

import (
	"errors"
	"math"
)

var (
	ErrQuotaRequestsExceeded = errors.New("quota requests exceeded")
	ErrQuotaCounterOverflow  = errors.New("quota counter overflow")
)

// QuotaNow captures the current quota usage counters for an address.
type QuotaNow struct {
	ReqCount uint32
	EpochID  uint64
}

// Quota defines the limits enforced for a module interaction per address.
// A zero MaxRequestsPerEpoch disables the limit.
type Quota struct {
	MaxRequestsPerEpoch uint32
	EpochSeconds        uint32
}

// Enabled reports whether the quota restricts anything.
func (q Quota) Enabled() bool { return q.MaxRequestsPerEpoch > 0 }

// EpochOf maps a unix timestamp to the quota epoch identifier. Epochs default
// to one minute when EpochSeconds is unset.
func (q Quota) EpochOf(unix int64) uint64 {
	if unix <= 0 {
		return 0
	}
	span := uint64(q.EpochSeconds)
	if span == 0 {
		span = 60
	}
	return uint64(unix) / span
}

// CheckQuota verifies whether the additional requests fit within the configured
// quota. The returned QuotaNow reflects the updated counters when the quota is
// not exceeded.
func CheckQuota(q Quota, nowEpoch uint64, prev QuotaNow, addReq uint32) (QuotaNow, error) {
	next := prev
	if prev.EpochID != nowEpoch {
		next = QuotaNow{EpochID: nowEpoch}
	}

	if addReq > 0 {
		if next.ReqCount > math.MaxUint32-addReq {
			return prev, ErrQuotaCounterOverflow
		}
		next.ReqCount += addReq
	}
	if q.MaxRequestsPerEpoch > 0 && next.ReqCount > q.MaxRequestsPerEpoch {
		return prev, ErrQuotaRequestsExceeded
	}

	return next, nil
}
