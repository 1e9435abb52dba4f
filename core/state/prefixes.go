package state

import (
	"encoding/hex"
	"strconv"
)

const (
	tokenBalancePrefix   = "assets/token/balance/"
	tokenAllowancePrefix = "assets/token/allowance/"
	tokenSupplyPrefix    = "assets/token/supply/"
	nftOwnerPrefix       = "assets/nft/owner/"
	nftApprovalPrefix    = "assets/nft/approval/"
	nftOperatorPrefix    = "assets/nft/operator/"

	reservePrefix    = "moneymarket/reserve/"
	positionPrefix   = "moneymarket/position/"
	delegationPrefix = "moneymarket/delegation/"

	loansPrefix       = "loans/"
	lenderIndexPrefix = "loans/lender/"

	pausePrefix = "system/pause/"
)

func hexPart(b []byte) string { return hex.EncodeToString(b) }

func joinKey(prefix string, parts ...string) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p) + 1
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for i, p := range parts {
		if i > 0 {
			buf = append(buf, '/')
		}
		buf = append(buf, p...)
	}
	return buf
}

func tokenBalanceKey(asset, holder [20]byte) []byte {
	return joinKey(tokenBalancePrefix, hexPart(asset[:]), hexPart(holder[:]))
}

func tokenAllowanceKey(asset, owner, spender [20]byte) []byte {
	return joinKey(tokenAllowancePrefix, hexPart(asset[:]), hexPart(owner[:]), hexPart(spender[:]))
}

func tokenSupplyKey(asset [20]byte) []byte {
	return joinKey(tokenSupplyPrefix, hexPart(asset[:]))
}

func nftOwnerKey(contract [20]byte, id string) []byte {
	return joinKey(nftOwnerPrefix, hexPart(contract[:]), id)
}

func nftApprovalKey(contract [20]byte, id string) []byte {
	return joinKey(nftApprovalPrefix, hexPart(contract[:]), id)
}

func nftOperatorKey(contract, owner, operator [20]byte) []byte {
	return joinKey(nftOperatorPrefix, hexPart(contract[:]), hexPart(owner[:]), hexPart(operator[:]))
}

func reserveKey(asset [20]byte) []byte {
	return joinKey(reservePrefix, hexPart(asset[:]))
}

func positionKey(asset, account [20]byte) []byte {
	return joinKey(positionPrefix, hexPart(asset[:]), hexPart(account[:]))
}

func delegationKey(asset [20]byte, mode uint8, delegator, delegatee [20]byte) []byte {
	return joinKey(delegationPrefix, hexPart(asset[:]), strconv.Itoa(int(mode)), hexPart(delegator[:]), hexPart(delegatee[:]))
}

func loanCountKey(ns string) []byte {
	return joinKey(loansPrefix, ns, "count")
}

func loanRequestKey(ns string, id uint64) []byte {
	return joinKey(loansPrefix, ns, "request", strconv.FormatUint(id, 10))
}

func loanDedupKey(ns string, key [32]byte) []byte {
	return joinKey(loansPrefix, ns, "key", hexPart(key[:]))
}

func loanQuotaKey(ns string, account [20]byte) []byte {
	return joinKey(loansPrefix, ns, "quota", hexPart(account[:]))
}

func lenderLoanKey(lender, asset [20]byte, mode uint8) []byte {
	return joinKey(lenderIndexPrefix, hexPart(lender[:]), hexPart(asset[:]), strconv.Itoa(int(mode)))
}

func pauseKey(module string) []byte {
	return joinKey(pausePrefix, module)
}
