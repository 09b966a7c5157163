package main

import "github.com/ethpandaops/eip7702-checker/cmd"

func main() {
	cmd.Execute()
}
