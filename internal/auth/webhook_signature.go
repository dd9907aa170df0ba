package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

const (
	// DefaultWebhookTTL: максимальный возраст подписи webhook.
	DefaultWebhookTTL = 5 * time.Minute

	SignatureHeader = "X-Ledger-Signature"
	TimestampHeader = "X-Ledger-Timestamp"
)

// SignWebhook returns the hex HMAC-SHA256 of "<timestamp>.<body>" keyed by
// HMAC-SHA256("LedgerWebhook", secret).
func SignWebhook(secret string, timestamp time.Time, body []byte) string {
	return hex.EncodeToString(webhookMAC(secret, strconv.FormatInt(timestamp.Unix(), 10), body))
}

// VerifyWebhook checks a signature produced by SignWebhook.
//
// maxAge: максимально допустимый возраст timestamp. Если <= 0, используется DefaultWebhookTTL.
func VerifyWebhook(secret, timestamp, signature string, body []byte, maxAge time.Duration) error {
	if maxAge <= 0 {
		maxAge = DefaultWebhookTTL
	}
	if signature == "" {
		return fmt.Errorf("signature is missing")
	}

	// ---- Проверяем timestamp (свежесть) ----
	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp is not a valid unix timestamp")
	}
	signedAt := time.Unix(unix, 0)
	if time.Since(signedAt) > maxAge {
		return fmt.Errorf("signature expired: signed %s ago (max %s)", time.Since(signedAt).Round(time.Second), maxAge)
	}
	// clock skew макс. 1 мин
	if signedAt.After(time.Now().Add(1 * time.Minute)) {
		return fmt.Errorf("timestamp is in the future")
	}

	// ---- Проверяем HMAC-SHA256 подпись ----
	received, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("signature is not hex")
	}
	if !hmac.Equal(received, webhookMAC(secret, timestamp, body)) {
		return fmt.Errorf("invalid signature: payload integrity check failed")
	}
	return nil
}

func webhookMAC(secret, timestamp string, body []byte) []byte {
	key := hmacSHA256([]byte("LedgerWebhook"), []byte(secret))
	msg := make([]byte, 0, len(timestamp)+1+len(body))
	msg = append(msg, timestamp...)
	msg = append(msg, '.')
	msg = append(msg, body...)
	return hmacSHA256(key, msg)
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}
