package gateway

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
)

func sha256Hex(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

func sha512Hex(input string) string {
	sum := sha512.Sum512([]byte(input))
	return hex.EncodeToString(sum[:])
}

// approveSignature signs the second leg of the two-step handshake.
func approveSignature(authToken, timestamp string) string {
	return sha256Hex(fmt.Sprintf("authToken=%s&timestamp=%s", authToken, timestamp))
}

func approveVerification(authToken, signKey, timestamp string) string {
	return sha256Hex(fmt.Sprintf("authToken=%s&signKey=%s&timestamp=%s", authToken, signKey, timestamp))
}

// refundHash covers the whole refund request body so the provider can
// detect tampering: apiKey + mid + type + timestamp + data JSON.
func refundHash(apiKey, merchantID, timestamp, dataJSON string) string {
	return sha512Hex(apiKey + merchantID + "refund" + timestamp + dataJSON)
}
