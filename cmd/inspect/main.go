// Command inspect dumps raw keys and values from a stopped server's store.
package main

import (
	"flag"
	"fmt"
	"os"

	"dealerchat/pkg/state"
	"dealerchat/pkg/store"
)

func main() {
	var (
		dbPath string
		prefix string
		values bool
	)
	flag.StringVar(&dbPath, "db", "./.database", "data directory of the server")
	flag.StringVar(&prefix, "prefix", "", "only keys starting with this prefix (e.g. chatmeta:, lead:)")
	flag.BoolVar(&values, "values", false, "print values next to keys")
	flag.Parse()

	db, err := store.Open(state.Layout(dbPath).Store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	keys, err := db.ListKeys(prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list keys: %v\n", err)
		os.Exit(1)
	}
	for _, k := range keys {
		if !values {
			fmt.Println(k)
			continue
		}
		v, err := db.GetKey(k)
		if err != nil {
			fmt.Fprintf(os.Stderr, "get %s: %v\n", k, err)
			continue
		}
		fmt.Printf("%s\t%s\n", k, v)
	}
	fmt.Fprintf(os.Stderr, "%d keys\n", len(keys))
}
