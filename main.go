package main

import "github.com/agentic-research/tessera/cmd"

func main() {
	cmd.Execute()
}
