package util

import (
	"fmt"
	"strings"
)

const (
	NETWORK_MAINNET = "mainnet"
	NETWORK_TESTNET = "testnet"
	NETWORK_REGTEST = "regtest"

	// Number of base units in one whole coin or asset
	COIN = 100_000_000

	// Decimal places carried by amounts on the command surface
	AMOUNT_DECIMALS = 8

	// Hard ceiling on recipients per transfer, imposed by transaction size
	MAX_PAYMENTS_PER_BATCH = 50
)

type NetworkConstants struct {
	NativeSymbol       string // Identifier of the ledger's native currency
	TimeBetweenBlocks  int    // Seconds
	FutureHeightOffset int    // Blocks between scheduling and payout snapshot; far enough ahead to be safe from forks
	MaxMoney           int64  // Largest valid native amount, in base units
	PubKeyHashAddrID   byte   // base58check version byte for P2PKH addresses
	ScriptHashAddrID   byte   // base58check version byte for P2SH addresses
}

func GetNetworkConstants(network string) (*NetworkConstants, error) {

	switch network {
	case NETWORK_MAINNET:
		return &NetworkConstants{
			"RVN", 60, 61, 21_000_000_000 * COIN, 60, 122,
		}, nil
	case NETWORK_TESTNET:
		return &NetworkConstants{
			"RVN", 60, 61, 21_000_000_000 * COIN, 111, 196,
		}, nil
	case NETWORK_REGTEST:
		return &NetworkConstants{
			"RVN", 1, 61, 21_000_000_000 * COIN, 111, 196,
		}, nil
	}

	// Unknown network
	return nil, fmt.Errorf("No such network '%s' exists", network)
}

func IsValidNetwork(maybeNetwork string) bool {
	return maybeNetwork == NETWORK_MAINNET || maybeNetwork == NETWORK_TESTNET || maybeNetwork == NETWORK_REGTEST
}

func AvailableNetworks() string {
	return strings.Join([]string{NETWORK_MAINNET, NETWORK_TESTNET, NETWORK_REGTEST}, ",")
}
