// Command issue-token prints an OPERATOR access token for GET/POST /revenue
// when REVENUE_AUTH_ENABLED is on.  It signs with JWT_SECRET from the
// environment (or .env).
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/garage-parking/internal/config"
	"github.com/iliyamo/garage-parking/internal/logging"
	"github.com/iliyamo/garage-parking/internal/utils"
)

func main() {
	_ = godotenv.Load()

	subject := flag.String("sub", "operator", "token subject (operator id)")
	ttl := flag.Duration("ttl", 0, "token lifetime; defaults to ACCESS_TOKEN_TTL_MIN minutes")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		logging.Logger().Fatal().Msg("JWT_SECRET is not set")
	}

	lifetime := *ttl
	if lifetime <= 0 {
		lifetime = config.LoadTokenTTL()
	}

	tok, err := utils.NewAccessToken(secret, *subject, utils.RoleOperator, lifetime)
	if err != nil {
		logging.Logger().Fatal().Err(err).Msg("sign token")
	}
	fmt.Println(tok.Token)
	fmt.Fprintf(os.Stderr, "expires %s\n", tok.Exp.Format(time.RFC3339))
}
