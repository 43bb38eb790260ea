// Command nfectl parses NF-e XML files from the command line.
package main

import "github.com/JonMunkholm/nfe-panel/internal/cli"

func main() {
	cli.Execute()
}
