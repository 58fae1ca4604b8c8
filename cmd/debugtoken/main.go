// Command debugtoken mints a bearer token for the /debug endpoints.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/lukasbauer/ivrnav/internal/httpapi"
)

func main() {
	_ = godotenv.Load()

	subject := flag.String("sub", "operator", "token subject")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "signing secret (defaults to $JWT_SECRET)")
	flag.Parse()

	token, expiresAt, err := httpapi.SignDebugToken(*secret, *subject, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "debugtoken: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.Format(time.RFC3339))
	fmt.Println(token)
}
