// Command devtoken mints an HS256 token for local development. The token's
// sub claim carries the caller identity the API authenticates.
//
//	go run ./cmd/devtoken -identity 0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed -secret dev -ttl 24h
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"

	"github.com/99minutos/approval-system/internal/core/domain"
)

func main() {
	_ = godotenv.Load()

	identity := flag.String("identity", "", "caller identity (0x-prefixed 20-byte hex address)")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "HS256 signing secret (defaults to $JWT_SECRET)")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	token, err := mint(*identity, *secret, *ttl, time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, "devtoken:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func mint(identity, secret string, ttl time.Duration, now time.Time) (string, error) {
	normalized, err := domain.NormalizeIdentity(identity)
	if err != nil {
		return "", err
	}
	if secret == "" {
		return "", fmt.Errorf("a signing secret is required (-secret or JWT_SECRET)")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("ttl must be positive, got %s", ttl)
	}

	claims := jwt.RegisteredClaims{
		Subject:   normalized,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    "devtoken",
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
