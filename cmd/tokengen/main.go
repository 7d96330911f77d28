// Command tokengen prints a bearer token for a relay deployment that has
// RELAY_SHARED_SECRET set.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"gemini-relay-api/internal/config"
	"gemini-relay-api/internal/middleware"
)

func main() {
	subject := flag.String("subject", "frontend", "subject claim of the token")
	ttl := flag.Duration("ttl", 0, "token lifetime (default AUTH_TOKEN_TTL)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if !cfg.AuthEnabled() {
		logrus.Fatal("RELAY_SHARED_SECRET is not set")
	}

	auth, err := middleware.NewSharedSecretAuth(&middleware.AuthConfig{
		Secret:        cfg.Auth.SharedSecret,
		TokenDuration: cfg.Auth.TokenTTL,
		Issuer:        cfg.Auth.Issuer,
	})
	if err != nil {
		logrus.Fatalf("Failed to create authenticator: %v", err)
	}

	if *ttl < 0 {
		logrus.Fatal("ttl must not be negative")
	}
	lifetime := *ttl
	if lifetime == 0 {
		lifetime = cfg.Auth.TokenTTL
	}

	token, err := auth.GenerateToken(*subject, lifetime)
	if err != nil {
		logrus.Fatalf("Failed to generate token: %v", err)
	}

	logrus.WithFields(logrus.Fields{
		"subject":    *subject,
		"expires_at": time.Now().Add(lifetime).UTC().Format(time.RFC3339),
	}).Info("Token generated")
	fmt.Fprintln(os.Stdout, token)
}
