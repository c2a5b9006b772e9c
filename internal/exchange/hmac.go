package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignHMAC computes the hex-encoded HMAC-SHA256 signature MEXC and BingX
// both use for authenticated REST requests: sign the canonical query
// string with the account's API secret. This is the same primitive the
// teacher used for L2 trading-endpoint auth (HMAC-SHA256 over
// timestamp+method+path+body); centralized-exchange auth needs nothing
// beyond it — there is no on-chain wallet to sign with.
func SignHMAC(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
