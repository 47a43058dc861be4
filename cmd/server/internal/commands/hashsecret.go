package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/tonearm/tonearm/internal/auth"
)

// HashSecretCmd produces the argon2id hash of an operator secret for use
// with --admin-secret-hash. The secret is read from stdin so it never lands
// in shell history or process listings.
type HashSecretCmd struct{}

func (c *HashSecretCmd) Run(globals *Globals) error {
	secret, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && secret == "" {
		return fmt.Errorf("reading secret from stdin: %w", err)
	}
	secret = strings.TrimRight(secret, "\r\n")

	if secret == "" {
		return fmt.Errorf("secret must not be empty")
	}

	hash, err := auth.NewHasher(auth.DefaultHashParams()).Hash(secret)
	if err != nil {
		return fmt.Errorf("hashing secret: %w", err)
	}

	fmt.Println(hash)
	return nil
}
