package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/PratikDhanave/call-intake-service/internal/config"
	"github.com/PratikDhanave/call-intake-service/internal/logger"
)

// Form fields of a signed telephony webhook.
const (
	FormAPIKey  = "vpbx_api_key"
	FormSign    = "sign"
	FormPayload = "json"
)

// WebhookGuard admits telephony webhooks from allowed IPs carrying a valid
// signature. An empty allowlist admits every IP; signing is enforced only
// when both key and salt are configured.
// Requests failing it did not come from the provider and get a 403 instead of
// the webhook's usual 200.
func WebhookGuard(cfg config.WebhookConfig, log *logger.Logger) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(cfg.AllowedIPs))
	for _, ip := range cfg.AllowedIPs {
		allowed[strings.TrimSpace(ip)] = struct{}{}
	}

	return func(c *gin.Context) {
		ip := c.ClientIP()
		if len(allowed) > 0 {
			if _, ok := allowed[ip]; !ok {
				log.WebhookRejected(ip, "ip_not_allowed")
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"ok": false, "detail": "ip not allowed"})
				return
			}
		}

		if cfg.SigningEnabled() {
			sign := c.PostForm(FormSign)
			if sign == "" {
				log.WebhookRejected(ip, "missing_signature")
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"ok": false, "detail": "missing signature"})
				return
			}
			if !VerifySignature(cfg.APIKey, cfg.APISalt, c.PostForm(FormAPIKey), c.PostForm(FormPayload), sign) {
				log.WebhookRejected(ip, "bad_signature")
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"ok": false, "detail": "invalid signature"})
				return
			}
		}

		c.Next()
	}
}

// Sign computes the VPBX signature: hex(sha256(api_key + json + api_salt)).
func Sign(apiKey, payload, salt string) string {
	sum := sha256.Sum256([]byte(apiKey + payload + salt))
	return hex.EncodeToString(sum[:])
}

// VerifySignature checks the presented key and signature in constant time.
func VerifySignature(apiKey, salt, presentedKey, payload, sign string) bool {
	if apiKey == "" || salt == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(presentedKey), []byte(apiKey)) != 1 {
		return false
	}
	expected := Sign(apiKey, payload, salt)
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(strings.TrimSpace(sign))), []byte(expected)) == 1
}
