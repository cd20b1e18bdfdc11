package main

import "github.com/browser-bridge/bridge/cmd/bridgectl/command"

func main() {
	command.Execute()
}
