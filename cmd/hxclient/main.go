package main

import (
	"fmt"
	"os"
)

const version = "0.1.0"

// keyEnv names the environment variable holding the binding key.
const keyEnv = "HXCLIENT_KEY"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "fire":
		if err := runFire(args, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case "seal":
		if err := runSeal(args, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("hxclient version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`hxclient - request pipeline for server-rendered components

Usage:
  hxclient <command> [arguments]

Commands:
  fire [options] <page.html>   Bind the page, fire an event, print the page once the queue drains
  seal [options] <attributes>  Seal request attributes for a data-hx-ajax binding
  version                      Print version
  help                         Show this help

Options for fire:
  --base <url>          Server the request URLs are resolved against (required)
  --target <id>         Element to fire the event on (default: the page)
  --event <name>        Event name (default: click)
  --settings <file>     YAML settings file
  --timeout <duration>  Give up after this long (default: 30s)
  -v, -vv               Debug or trace logging

Options for seal:
  --event <names>       Events that trigger the request (default: click)
  --swap <mode>         How the response is applied (default: outerHTML)
  --sensitive           Encrypt instead of sign

Both commands read the binding key from $HXCLIENT_KEY.

Examples:
  hxclient seal --event click '{c: row-1, u: {action: delete}}'
  hxclient fire --base http://localhost:8080 --target row-1 page.html`)
}
