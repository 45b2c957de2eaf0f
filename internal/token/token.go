// Package token signs and verifies the win-notice tokens embedded in bid
// NURLs, so that the win endpoint only trusts notices for bids it placed.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalid = errors.New("invalid token")
	ErrExpired = errors.New("token expired")
)

// Win identifies a placed bid. It is what a win notice refers back to.
type Win struct {
	RequestID  string  `json:"r"`
	ImpID      string  `json:"i"`
	BidID      string  `json:"b"`
	Exchange   string  `json:"x"`
	Seat       string  `json:"s,omitempty"`
	CreativeID string  `json:"c,omitempty"`
	LineItemID int     `json:"l,omitempty"`
	UserID     string  `json:"u,omitempty"`
	BidPrice   float64 `json:"bp"`  // Price bid, in Currency.
	Currency   string  `json:"cur"` // Response currency.
	IssuedAt   int64   `json:"t"`
}

// Signer creates and checks tokens with one secret.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner returns a signer. A zero ttl disables expiry.
func NewSigner(secret []byte, ttl time.Duration) *Signer {
	return &Signer{secret: secret, ttl: ttl, now: time.Now}
}

// Generate signs w, stamping its issue time.
func (s *Signer) Generate(w Win) (string, error) {
	w.IssuedAt = s.now().Unix()
	data, err := json.Marshal(w)
	if err != nil {
		return "", err
	}
	enc := base64.RawURLEncoding
	return enc.EncodeToString(data) + "." + enc.EncodeToString(s.sign(data)), nil
}

// Verify checks the token integrity and expiry and returns its contents.
func (s *Signer) Verify(token string) (Win, error) {
	var w Win
	encData, encSig, ok := strings.Cut(token, ".")
	if !ok {
		return w, ErrInvalid
	}
	enc := base64.RawURLEncoding
	data, err := enc.DecodeString(encData)
	if err != nil {
		return w, ErrInvalid
	}
	sig, err := enc.DecodeString(encSig)
	if err != nil {
		return w, ErrInvalid
	}
	if !hmac.Equal(s.sign(data), sig) {
		return w, ErrInvalid
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return w, ErrInvalid
	}
	if s.ttl > 0 && s.now().Sub(time.Unix(w.IssuedAt, 0)) > s.ttl {
		return w, ErrExpired
	}
	return w, nil
}

func (s *Signer) sign(data []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(data)
	return mac.Sum(nil)
}
