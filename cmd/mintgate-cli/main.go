package main

import (
	"fmt"
	"os"
	"strings"
)

const (
	rpcURLEnv    = "MINTGATE_RPC_URL"
	rpcTokenEnv  = "MINTGATE_RPC_TOKEN"
	keyPassEnv   = "MINTGATE_KEY_PASS"
	defaultRPC   = "http://127.0.0.1:8645"
)

var (
	rpcEndpoint = defaultRPC
	rpcToken    = os.Getenv(rpcTokenEnv)
)

func main() {
	args := os.Args[1:]
	if url := strings.TrimSpace(os.Getenv(rpcURLEnv)); url != "" {
		rpcEndpoint = url
	}
	args, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if len(args) < 1 {
		printUsage()
		return
	}

	var code int
	switch args[0] {
	case "generate-key":
		code = runGenerateKey(args[1:])
	case "inspect-key":
		code = runInspectKey(args[1:])
	case "sign-mint":
		code = runSignMint(args[1:])
	case "digest":
		code = runDigest(args[1:])
	case "chain-info":
		code = runChainInfo(args[1:])
	case "balance":
		code = runBalance(args[1:])
	case "collection":
		code = runCollection(args[1:])
	case "signers":
		code = runSigners(args[1:])
	case "public-drop":
		code = runPublicDrop(args[1:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		printUsage()
		code = 1
	}
	if code != 0 {
		os.Exit(code)
	}
}

// applyGlobalFlags strips --rpc <url> (or --rpc=<url>) from anywhere in the
// argument list so subcommands stay order-agnostic about it.
func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--rpc":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--rpc requires a URL")
			}
			i++
			rpcEndpoint = strings.TrimSpace(args[i])
		case strings.HasPrefix(arg, "--rpc="):
			rpcEndpoint = strings.TrimSpace(strings.TrimPrefix(arg, "--rpc="))
		default:
			out = append(out, arg)
		}
	}
	if rpcEndpoint == "" {
		return nil, fmt.Errorf("rpc endpoint must not be empty")
	}
	return out, nil
}

func printUsage() {
	fmt.Println(`Usage: mintgate-cli [--rpc <url>] <command> [options]

Key management:
  generate-key <file>        create a keystore file (passphrase via ` + keyPassEnv + ` or prompt)
  inspect-key <file>         print the address of a keystore file

Signing:
  sign-mint [options]        sign a mint authorization with a keystore key
  digest [options]           preview the typed-data digest via the node

Queries:
  chain-info                 chain id, registry address, domain separator
  balance <address>          account balance
  collection <address>       collection record
  signers <collection>       registered signers for a collection
  public-drop <collection>   stored public stage

Environment:
  ` + rpcURLEnv + `          RPC endpoint (default ` + defaultRPC + `)
  ` + rpcTokenEnv + `        bearer token for write methods
  ` + keyPassEnv + `         keystore passphrase`)
}
