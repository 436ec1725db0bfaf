package main

import (
	"fmt"
	"os"

	"cynix/config"
	"cynix/services"
)

// Issues an API credential for a wallet using the configured signing secret.
// Usage: go run ./scripts <wallet_address>

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: issue_token <wallet_address>")
		os.Exit(2)
	}
	wallet := os.Args[len(os.Args)-1]

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	token, err := services.NewCredentialVerifier(cfg.Auth).Issue(wallet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue credential: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Wallet:  %s\n", wallet)
	fmt.Printf("Expires: %dh\n", cfg.Auth.TokenTTL)
	fmt.Println(token)
}
