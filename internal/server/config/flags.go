package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmsavelyev/chatvault/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   data directory (vault + registry)
//	-k string   credentials directory of the external client
//	-e string   engine binary path
//	-w int      QR wait budget, seconds
//	-g          capture group conversations
//	-s string   control API HMAC secret key (empty disables auth)
//	-t int      token validity, minutes
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes
//     using flagx.FilterArgs, avoiding collisions with other components.
//   - The audit key is never accepted as a flag; process listings leak it.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-k", "-e", "-w", "-g", "-s", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DataDir, "d", config.DataDir, "data directory")
	fs.StringVar(&config.CredsDir, "k", config.CredsDir, "credentials directory")
	fs.StringVar(&config.EngineCmd, "e", config.EngineCmd, "engine binary path")

	qrWait := fs.Int("w", int(config.QRWait.Seconds()), "qr_wait (in seconds)")

	fs.BoolVar(&config.CaptureGroups, "g", config.CaptureGroups, "capture group conversations")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	tokenValidityDuration := fs.Int("t", int(config.TokenValidityDuration.Minutes()), "token_validity_duration (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.QRWait = time.Duration(*qrWait) * time.Second
	config.TokenValidityDuration = time.Duration(*tokenValidityDuration) * time.Minute
}
