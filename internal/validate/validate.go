package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	swaperr "github.com/ggonzalez94/swapd/internal/errors"
)

var amountPattern = regexp.MustCompile(`^\d+$`)

const (
	MinSlippageBps = 1
	MaxSlippageBps = 2000
)

// Address checks raw is a hex EVM address and returns its EIP-55
// checksummed form. field names the offending request field on failure.
func Address(field, raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	if !common.IsHexAddress(clean) {
		return "", swaperr.New(swaperr.KindInvalidAddress, fmt.Sprintf("invalid address in field %q", field))
	}
	return common.HexToAddress(clean).Hex(), nil
}

// Amount checks raw is a non-negative arbitrary-precision integer string.
// The magnitude is passed through unchanged.
func Amount(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	if !amountPattern.MatchString(clean) {
		return "", swaperr.New(swaperr.KindInvalidAmount, "amount must be an unsigned integer string")
	}
	return clean, nil
}

// SlippageBps checks the slippage tolerance is within [1, 2000] basis
// points.
func SlippageBps(v int64) error {
	if v < MinSlippageBps || v > MaxSlippageBps {
		return swaperr.New(swaperr.KindInvalidSlippage,
			fmt.Sprintf("slippage must be between %d and %d basis points", MinSlippageBps, MaxSlippageBps))
	}
	return nil
}
