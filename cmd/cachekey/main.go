// cachekey prints the cache keys of stored entities and collections.
//
// # Installation
//
//	go install github.com/acksell/cachekey/cmd/cachekey@latest
//
// # Commands
//
//	cachekey entity      Print the key of one entity
//	cachekey collection  Print the key of all entities of a type
//	cachekey touch       Refresh an entity timestamp and cascade to parents
//
// Tables, formats and the backend come from cachekey.yaml, searched from the
// working directory upwards.
package main

import (
	"fmt"
	"os"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "entity":
		err = runEntity(args)
	case "collection", "all":
		err = runCollection(args)
	case "touch":
		err = runTouch(args)
	case "help", "-h", "--help":
		printUsage()
		return
	case "version", "-v", "--version":
		fmt.Printf("cachekey version %s\n", version)
		return
	default:
		fmt.Fprintf(os.Stderr, "cachekey: unknown command %q\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "cachekey %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`cachekey - cache keys for stored entities

Usage:
  cachekey <command> [flags]

Commands:
  entity      Print the key of one entity
  collection  Print the key of all entities of a type
  touch       Refresh an entity timestamp and cascade to parents

Examples:
  cachekey entity --type people --id 7 --attrs updated_at,created_at
  cachekey entity --type people
  cachekey collection --type people --sources updated_at,updated_on
  cachekey touch --type comments --id 42

Configuration (cachekey.yaml):

    defaultFormat: nsec     # seconds | usec | nsec | number
    formats:
      people: usec
    backend: bolt           # badger | bolt | dynamodb
    dataDir: ./cache.db
    tables:
      - name: people
        partitionKey: {name: id, kind: N}
        timestamps: [created_at, updated_at]

Without dataDir the badger backend runs in memory and starts empty, so
entity --id and touch refuse to run; collection prints "<type>/all/0".

Run 'cachekey <command> --help' for more information on a command.`)
}
