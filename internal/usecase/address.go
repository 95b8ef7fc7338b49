package usecase

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// normalizeAddress accepts 20-byte EVM addresses (returned EIP-55 checksummed)
// and 32-byte account addresses (returned lowercase). Anything else is rejected.
func normalizeAddress(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if common.IsHexAddress(s) {
		return common.HexToAddress(s).Hex(), true
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "", false
	}
	b, err := hexutil.Decode("0x" + s[2:])
	if err != nil || len(b) != common.HashLength {
		return "", false
	}
	return hexutil.Encode(b), true
}
