// The remount tool decrypts the audit vault offline: it lists identities,
// conversations and media, and renders encrypted logs back to plaintext
// transcripts and media blobs back to files.
//
// The audit key comes from the AUDIT_KEY_B64 environment variable, or is
// derived from a passphrase prompted without echo when -passphrase is set.
package main

import (
	"flag"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/dmsavelyev/chatvault/internal/audit"
	"github.com/dmsavelyev/chatvault/internal/buildinfo"
	"github.com/dmsavelyev/chatvault/internal/common"
	"github.com/dmsavelyev/chatvault/internal/cryptox"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: remount [flags] <command> [args]

Commands:
  identities                 list identities present in the vault
  convos <id>                list conversation keys of an identity
  media-list <id>            list stored media codes of an identity
  convo <id> <convoKey>      print one conversation transcript to stdout
  convo-all <id>             write all transcripts to <data>/remounted
  media <id> <mediaCode>     decrypt one media item to <data>/remounted
  media-all <id>             decrypt all media items of an identity

Flags:
`)
	flag.PrintDefaults()
}

func loadKey(passphrase bool, salt string) ([]byte, error) {
	if passphrase {
		if salt == "" {
			return nil, fmt.Errorf("-salt is required with -passphrase: %w", common.ErrConfig)
		}
		fmt.Fprint(os.Stderr, "Passphrase: ")
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("read passphrase: %w", err)
		}
		defer common.WipeByteArray(secret)
		return cryptox.DeriveKey(secret, []byte(salt)), nil
	}

	b64 := os.Getenv(common.AuditKeyEnvName)
	if b64 == "" {
		return nil, fmt.Errorf("%s is not set (or use -passphrase): %w", common.AuditKeyEnvName, common.ErrConfig)
	}
	return cryptox.LoadKey(b64)
}

func run() error {
	dataDir := flag.String("d", "./data", "data directory")
	passphrase := flag.Bool("passphrase", false, "derive the key from a prompted passphrase")
	salt := flag.String("salt", "", "salt for passphrase derivation")
	version := flag.Bool("version", false, "print build info and exit")
	flag.Usage = usage
	flag.Parse()

	if *version {
		buildinfo.PrintBuildData(os.Stdout)
		return nil
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		return common.ErrConfig
	}

	key, err := loadKey(*passphrase, *salt)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)

	cipher, err := cryptox.NewCipher(key)
	if err != nil {
		return err
	}

	rem := audit.NewRemounter(audit.Dirs{Base: *dataDir}, cipher)

	needArgs := func(n int) error {
		if len(args)-1 < n {
			usage()
			return fmt.Errorf("%s: missing arguments: %w", args[0], common.ErrConfig)
		}
		return nil
	}

	switch args[0] {
	case "identities":
		ids, err := rem.ListIdentities()
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil

	case "convos":
		if err := needArgs(1); err != nil {
			return err
		}
		keys, err := rem.ListConversations(args[1])
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		return nil

	case "media-list":
		if err := needArgs(1); err != nil {
			return err
		}
		codes, err := rem.ListMediaCodes(args[1])
		if err != nil {
			return err
		}
		for _, c := range codes {
			fmt.Println(c)
		}
		return nil

	case "convo":
		if err := needArgs(2); err != nil {
			return err
		}
		res, err := rem.RemountConversation(args[1], args[2], os.Stdout)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "done: %d ok, %d failed\n", res.OK, res.Failed)
		return nil

	case "convo-all":
		if err := needArgs(1); err != nil {
			return err
		}
		res, err := rem.RemountAllConversations(args[1])
		if err != nil {
			return err
		}
		fmt.Printf("done: %d ok, %d failed\n", res.OK, res.Failed)
		return nil

	case "media":
		if err := needArgs(2); err != nil {
			return err
		}
		path, err := rem.RemountMedia(args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil

	case "media-all":
		if err := needArgs(1); err != nil {
			return err
		}
		res, err := rem.RemountAllMedia(args[1])
		if err != nil {
			return err
		}
		fmt.Printf("done: %d ok, %d failed\n", res.OK, res.Failed)
		return nil

	default:
		usage()
		return fmt.Errorf("unknown command %q: %w", args[0], common.ErrConfig)
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
