// Command sealsecret encrypts the Trans.eu client secret into a file that
// transeu.encrypted_secret_path can point at.
//
// Usage:
//
//	SEALSECRET_PASSWORD=... sealsecret -out secret.json < client_secret.txt
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/alanyoungcy/freightarb/internal/crypto"
)

func main() {
	out := flag.String("out", "transeu_secret.json", "where to write the sealed secret")
	flag.Parse()

	if err := run(*out); err != nil {
		fmt.Fprintf(os.Stderr, "sealsecret: %v\n", err)
		os.Exit(1)
	}
}

func run(out string) error {
	password := os.Getenv("SEALSECRET_PASSWORD")
	if password == "" {
		return fmt.Errorf("SEALSECRET_PASSWORD must be set")
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("reading secret from stdin: %w", err)
	}
	secret := strings.TrimSpace(line)

	sealed, err := crypto.EncryptSecret(secret, password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, sealed, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	fmt.Fprintf(os.Stderr, "sealed secret written to %s\n", out)
	return nil
}
