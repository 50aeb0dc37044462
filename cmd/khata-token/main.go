// Command khata-token issues a bearer token for local use against the API,
// signed with AUTH_JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"khata/internal/auth"
	"khata/internal/cli"
	"khata/internal/config"
	applog "khata/internal/log"
)

func main() {
	owner := flag.String("owner", "", "owner uuid (a new one is generated when empty)")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentAuth)

	if *owner == "" {
		*owner = uuid.NewString()
	}
	if *ttl <= 0 {
		cli.Fatal(logger, "Invalid token lifetime", fmt.Errorf("ttl must be positive, got %s", *ttl))
	}

	verifier, err := auth.NewVerifier(cfg.JWTSecret)
	if err != nil {
		cli.Fatal(logger, "Failed to create token signer", err)
	}
	token, err := verifier.Issue(*owner, *ttl)
	if err != nil {
		cli.Fatal(logger, "Failed to issue token", err, applog.FieldOwnerID, *owner)
	}

	fmt.Fprintf(os.Stderr, "owner: %s\nexpires: %s\n", *owner, time.Now().Add(*ttl).UTC().Format(time.RFC3339))
	fmt.Println(token)
}
