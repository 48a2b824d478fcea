// Package signer reproduces the request-signing contract of the mobile app.
//
// Every request to the BFF carries a keyed hash over the method, path, query,
// body digest, device identity and a millisecond timestamp, alongside the
// fixed app headers. The construction below was verified against recorded
// app traffic; treat the ordering and separators as a wire contract, not a
// style choice.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paypay-unofficial/paypay-mobile-go/device"
)

// Header names attached by Sign.
const (
	HeaderSignature = "Signature"
	HeaderTimestamp = "Signature-Timestamp"
	HeaderDevice    = "Device-UUID"
	HeaderClient    = "Client-UUID"
	HeaderInstall   = "Install-UUID"
)

// Fixed headers the backend expects from the mobile app build this client
// impersonates. Bumping the app version requires re-verifying the signature
// contract against fresh traffic.
const (
	userAgent     = "PayPay/3.80.0 (iPhone; iOS 16.0; Scale/3.00)"
	clientOSType  = "IOS"
	clientOSVer   = "16.0"
	clientAppVer  = "3.80.0"
	clientMode    = "NORMAL"
)

// ConfigError reports missing key material or identity fields. Signing never
// fails on a well-formed request; only misconfiguration is an error.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("signer: missing %s", e.Field)
}

// Request describes one unsigned outbound request.
type Request struct {
	Method      string
	Path        string
	Query       string
	Body        []byte
	Time        time.Time
	Identity    device.Identity
	AccessToken string
}

// Signer computes the signed header set for outbound requests.
// It is stateless and safe for concurrent use.
type Signer struct {
	key []byte
}

// New creates a Signer around the given key material.
func New(key []byte) *Signer {
	return &Signer{key: key}
}

// Sign returns the full header set for req, including the fixed app headers.
// The result is deterministic for identical inputs.
func (s *Signer) Sign(req Request) (map[string]string, error) {
	if len(s.key) == 0 {
		return nil, &ConfigError{Field: "signing key"}
	}
	if !req.Identity.Valid() {
		return nil, &ConfigError{Field: "device identity"}
	}

	millis := req.Time.UnixMilli()
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(canonical(req, millis)))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	headers := map[string]string{
		"User-Agent":         userAgent,
		"Accept":             "application/json",
		"Client-OS-Type":     clientOSType,
		"Client-OS-Version":  clientOSVer,
		"Client-App-Version": clientAppVer,
		"Client-Mode":        clientMode,
		HeaderDevice:         req.Identity.DeviceUUID,
		HeaderClient:         req.Identity.ClientUUID,
		HeaderInstall:        req.Identity.InstallID,
		HeaderTimestamp:      strconv.FormatInt(millis, 10),
		HeaderSignature:      sig,
	}
	if len(req.Body) > 0 {
		headers["Content-Type"] = "application/json"
	}
	if req.AccessToken != "" {
		headers["Authorization"] = "Bearer " + req.AccessToken
	}
	return headers, nil
}

// canonical builds the string the keyed hash is applied to. Field order and
// the newline separator are fixed by the backend.
func canonical(req Request, millis int64) string {
	digest := sha256.Sum256(req.Body)

	var b strings.Builder
	b.WriteString(strings.ToUpper(req.Method))
	b.WriteByte('\n')
	b.WriteString(req.Path)
	b.WriteByte('\n')
	b.WriteString(req.Query)
	b.WriteByte('\n')
	b.WriteString(hex.EncodeToString(digest[:]))
	b.WriteByte('\n')
	b.WriteString(req.Identity.DeviceUUID)
	b.WriteByte('\n')
	b.WriteString(req.Identity.ClientUUID)
	b.WriteByte('\n')
	b.WriteString(strconv.FormatInt(millis, 10))
	return b.String()
}
