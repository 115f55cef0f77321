package main

import (
	"encoding/json"
	"fmt"
	"os"
)

func runChainInfo(args []string) int {
	if len(args) != 0 {
		fmt.Fprintln(os.Stderr, "usage: mintgate-cli chain-info")
		return 1
	}
	return query("mint_getChainInfo", nil)
}

func runBalance(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: mintgate-cli balance <address>")
		return 1
	}
	return query("mint_getBalance", []interface{}{
		map[string]string{"address": args[0]},
	})
}

func runCollection(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: mintgate-cli collection <address>")
		return 1
	}
	return query("token_getInfo", []interface{}{
		map[string]string{"collection": args[0]},
	})
}

func runSigners(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: mintgate-cli signers <collection>")
		return 1
	}
	return query("drop_getSigners", []interface{}{
		map[string]string{"collection": args[0]},
	})
}

func runPublicDrop(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: mintgate-cli public-drop <collection>")
		return 1
	}
	return query("drop_getPublicDrop", []interface{}{
		map[string]string{"collection": args[0]},
	})
}

func query(method string, params []interface{}) int {
	var result json.RawMessage
	if err := call(method, params, &result); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	var pretty interface{}
	if err := json.Unmarshal(result, &pretty); err != nil {
		fmt.Println(string(result))
		return 0
	}
	printJSON(pretty)
	return 0
}
