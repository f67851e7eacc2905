package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// statePayload is the signed content of an OAuth state value. The nonce ties
// the callback to the browser that started the flow via the state cookie.
type statePayload struct {
	Nonce string `json:"nonce"`
	Exp   int64  `json:"exp"`
}

var (
	ErrInvalidState = errors.New("invalid state")
	ErrExpiredState = errors.New("expired state")
)

// IssueState returns an HMAC-signed state value valid for ttl.
func IssueState(secret []byte, ttl time.Duration) (string, error) {
	nonce := make([]byte, 16)
	_, _ = rand.Read(nonce)
	payloadBytes, err := json.Marshal(statePayload{
		Nonce: hex.EncodeToString(nonce),
		Exp:   time.Now().Add(ttl).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal state: %w", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(payloadBytes)
	return payload + "." + sign(secret, payload), nil
}

// VerifyState checks the signature and expiry of a state value.
func VerifyState(secret []byte, state string) error {
	parts := strings.Split(state, ".")
	if len(parts) != 2 {
		return ErrInvalidState
	}
	payload := parts[0]
	signature := parts[1]

	expected := sign(secret, payload)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ErrInvalidState
	}

	decoded, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return ErrInvalidState
	}

	var parsed statePayload
	if err := json.Unmarshal(decoded, &parsed); err != nil {
		return ErrInvalidState
	}
	if parsed.Nonce == "" || parsed.Exp == 0 {
		return ErrInvalidState
	}
	if time.Now().Unix() >= parsed.Exp {
		return ErrExpiredState
	}
	return nil
}

func sign(secret []byte, payload string) string {
	sum := hmac.New(sha256.New, secret)
	_, _ = sum.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(sum.Sum(nil))
}

// HashToken derives the storage key for a session token. Stores only ever
// see the hash, never the cookie value itself.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum)
}
