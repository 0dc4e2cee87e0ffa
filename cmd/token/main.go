// The token tool mints a bearer token for the control API. The server only
// verifies tokens; an operator mints one here with the same secret key and
// validity the server is configured with (-s/-t, the JSON config file, or
// their defaults) and passes it as "Authorization: Bearer <token>".
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dmsavelyev/chatvault/internal/common"
	"github.com/dmsavelyev/chatvault/internal/flagx"
	"github.com/dmsavelyev/chatvault/internal/server/auth"
	"github.com/dmsavelyev/chatvault/internal/server/config"
)

func parseOperator() string {
	args := flagx.FilterArgs(os.Args[1:], []string{"-o", "-operator"})

	var operator string
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.StringVar(&operator, "operator", "admin", "operator name the token is issued to")
	fs.StringVar(&operator, "o", "admin", "operator name (short)")
	_ = fs.Parse(args)

	return operator
}

func run() error {
	cfg := config.LoadConfig()
	if cfg.SecretKey == "" {
		return fmt.Errorf("no secret key configured, the server would not accept the token (-s or secret_key): %w", common.ErrConfig)
	}

	token, err := auth.GenerateToken(parseOperator(), []byte(cfg.SecretKey), cfg.TokenValidityDuration)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}

	fmt.Println(token)
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
