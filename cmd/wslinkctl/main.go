package main

import "github.com/lightfast-io/wslink/cmd/wslinkctl/cmd"

func main() {
	cmd.Execute()
}
