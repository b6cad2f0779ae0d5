package main

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestMint(t *testing.T) {
	token, err := mint("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "dev", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte("dev"), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("token does not verify: %v", err)
	}
	if claims.Subject != "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed" {
		t.Fatalf("subject not checksummed: %s", claims.Subject)
	}
}

func TestMint_Rejects(t *testing.T) {
	cases := []struct {
		name, identity, secret string
		ttl                    time.Duration
	}{
		{"bad identity", "alice", "dev", time.Hour},
		{"no secret", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", "", time.Hour},
		{"no ttl", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", "dev", 0},
	}
	for _, tc := range cases {
		if _, err := mint(tc.identity, tc.secret, tc.ttl, time.Now()); err == nil {
			t.Fatalf("%s: expected an error", tc.name)
		}
	}
}
