// Command tokengen prints an access token for local testing.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/inventory-reservation/internal/utils"
)

func main() {
	_ = godotenv.Load()
	uid := flag.Uint64("user", 1, "subject (user id)")
	role := flag.String("role", "CUSTOMER", "role claim: CUSTOMER or ADMIN")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("missing required env var: JWT_SECRET")
	}
	tok, err := utils.NewAccessToken(secret, *uid, *role, *ttl)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(tok.Token)
}
