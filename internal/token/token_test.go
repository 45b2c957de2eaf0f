package token

import (
	"testing"
	"time"
)

func TestGenerateVerify(t *testing.T) {
	s := NewSigner([]byte("secret"), time.Minute)
	tok, err := s.Generate(Win{RequestID: "r1", ImpID: "i1", BidID: "b1", Exchange: "openx", Seat: "s1", LineItemID: 7, BidPrice: 1.5, Currency: "USD"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	w, err := s.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if w.RequestID != "r1" || w.ImpID != "i1" || w.BidID != "b1" || w.Exchange != "openx" || w.Seat != "s1" || w.LineItemID != 7 {
		t.Fatalf("unexpected payload: %+v", w)
	}
	if w.BidPrice != 1.5 || w.Currency != "USD" {
		t.Fatalf("unexpected price: %+v", w)
	}
}

func TestVerifyExpired(t *testing.T) {
	s := NewSigner([]byte("s"), time.Minute)
	issued := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return issued }
	tok, err := s.Generate(Win{RequestID: "r"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	s.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := s.Verify(tok); err != ErrExpired {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerifyNoExpiry(t *testing.T) {
	s := NewSigner([]byte("s"), 0)
	s.now = func() time.Time { return time.Unix(0, 0) }
	tok, _ := s.Generate(Win{RequestID: "r"})
	s.now = time.Now
	if _, err := s.Verify(tok); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyInvalid(t *testing.T) {
	s := NewSigner([]byte("s"), time.Minute)
	tok, _ := s.Generate(Win{RequestID: "r"})
	for _, bad := range []string{tok + "x", "nodot", "a.b", ""} {
		if _, err := s.Verify(bad); err != ErrInvalid {
			t.Fatalf("%q: expected invalid, got %v", bad, err)
		}
	}
	other := NewSigner([]byte("other"), time.Minute)
	if _, err := other.Verify(tok); err != ErrInvalid {
		t.Fatalf("expected invalid with wrong secret, got %v", err)
	}
}
