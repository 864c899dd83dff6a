package domain

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Asset is a (currency code, scale) pair. Scale is the number of
// minor-unit decimal digits; all amounts are integers in minor units.
type Asset struct {
	Code                string
	Scale               uint32
	LiquidityBalanceID  string
	SettlementBalanceID string
}

// LiquidityBalanceID derives the deterministic id of an asset's liquidity
// balance. The derivation is stable across processes so lazy creation is
// idempotent: two concurrent first uses of an asset compute the same id.
func LiquidityBalanceID(assetCode string, assetScale uint32, secret []byte) string {
	return deriveBalanceID("liquidity", assetCode, assetScale, secret)
}

// SettlementBalanceID derives the deterministic id of an asset's settlement
// balance.
func SettlementBalanceID(assetCode string, assetScale uint32, secret []byte) string {
	return deriveBalanceID("settlement", assetCode, assetScale, secret)
}

func deriveBalanceID(kind, assetCode string, assetScale uint32, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(kind))
	mac.Write([]byte{0})
	mac.Write([]byte(assetCode))
	mac.Write([]byte{0})

	var scale [4]byte
	binary.BigEndian.PutUint32(scale[:], assetScale)
	mac.Write(scale[:])

	return hex.EncodeToString(mac.Sum(nil)[:16])
}
