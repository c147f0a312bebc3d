// Command devtoken signs a bearer token for local testing with the same
// secret the server is configured with.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"dealerchat/pkg/auth"
	"dealerchat/pkg/models"
)

func main() {
	_ = godotenv.Load(".env")
	var (
		user   = flag.String("user", "", "subject user id")
		role   = flag.String("role", string(models.RoleClient), "CLIENT, MANAGER or ADMIN")
		secret = flag.String("secret", os.Getenv("DEALERCHAT_JWT_SECRET"), "HMAC secret (defaults to DEALERCHAT_JWT_SECRET)")
		issuer = flag.String("issuer", os.Getenv("DEALERCHAT_JWT_ISSUER"), "token issuer")
		ttl    = flag.Duration("ttl", auth.DefaultTokenTTL, "token lifetime")
	)
	flag.Parse()

	r := models.Role(*role)
	if *user == "" || !r.Valid() || *secret == "" {
		flag.Usage()
		os.Exit(2)
	}
	tok, err := auth.NewTokens(*secret, *issuer, *ttl).Issue(*user, r)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
