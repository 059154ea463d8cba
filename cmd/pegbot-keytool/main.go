// Command pegbot-keytool manages the encrypted wallet key file read by
// pegbot's wallet.encrypted_key_path.
//
//	pegbot-keytool encrypt -address terra1... -chain-id columbus-4 -out wallet.json
//	pegbot-keytool check -in wallet.json      # prints the wallet and public key
//
// The key and password come from the environment or stdin.
package main

import (
	"bufio"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alanyoungcy/pegbot/internal/crypto"
)

const (
	envKey      = "PEGBOT_WALLET_PRIVATE_KEY"
	envPassword = "PEGBOT_WALLET_KEY_PASSWORD"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "pegbot-keytool: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: pegbot-keytool encrypt|check [flags]")
	}
	in := bufio.NewReader(stdin)

	switch args[0] {
	case "encrypt":
		fs := flag.NewFlagSet("encrypt", flag.ContinueOnError)
		out := fs.String("out", "wallet.json", "path of the encrypted key file to create")
		address := fs.String("address", os.Getenv("PEGBOT_WALLET_ADDRESS"), "wallet address the key signs for")
		chainID := fs.String("chain-id", os.Getenv("PEGBOT_CHAIN_CHAIN_ID"), "chain the wallet trades on")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *address == "" || *chainID == "" {
			return errors.New("encrypt: -address and -chain-id are required")
		}
		key, err := secret(in, stdout, envKey, "private key (hex): ")
		if err != nil {
			return err
		}
		password, err := secret(in, stdout, envPassword, "password: ")
		if err != nil {
			return err
		}
		if len(password) < 8 {
			return errors.New("password must be at least 8 characters")
		}
		// Reject a key the bot could not sign with before writing anything.
		if _, err := crypto.NewSigner(key); err != nil {
			return err
		}
		w := crypto.Wallet{Address: *address, ChainID: *chainID}
		if err := crypto.WriteKeyFile(*out, key, password, w); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %s for %s on %s\n", *out, w.Address, w.ChainID)
		return nil

	case "check":
		fs := flag.NewFlagSet("check", flag.ContinueOnError)
		path := fs.String("in", "wallet.json", "path of the encrypted key file")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		password, err := secret(in, stdout, envPassword, "password: ")
		if err != nil {
			return err
		}
		data, err := os.ReadFile(*path)
		if err != nil {
			return err
		}
		key, w, err := crypto.OpenKey(data, password)
		if err != nil {
			return err
		}
		signer, err := crypto.NewSigner(key)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wallet %s\nchain_id %s\npubkey %s\n", w.Address, w.ChainID, hex.EncodeToString(signer.PubKey()))
		return nil

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// secret reads a value from env, falling back to one line of stdin.
func secret(in *bufio.Reader, prompt io.Writer, env, label string) (string, error) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		return v, nil
	}
	fmt.Fprint(prompt, label)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading %s: %w", strings.TrimSuffix(label, ": "), err)
	}
	return strings.TrimSpace(line), nil
}
