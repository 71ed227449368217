package util

import (
	"github.com/btcsuite/btcutil/base58"
)

const hash160Size = 20

// ValidateAddress checks that addr is a base58check-encoded P2PKH or P2SH
// address for the given network.
func ValidateAddress(addr string, nc *NetworkConstants) bool {

	if nc == nil || addr == "" {
		return false
	}

	payload, version, err := base58.CheckDecode(addr)
	if err != nil || len(payload) != hash160Size {
		return false
	}

	return version == nc.PubKeyHashAddrID || version == nc.ScriptHashAddrID
}

// EncodeAddress builds a P2PKH address for the network from a 20-byte hash
func EncodeAddress(hash160 []byte, nc *NetworkConstants) string {
	return base58.CheckEncode(hash160, nc.PubKeyHashAddrID)
}
