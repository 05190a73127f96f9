package main

import "github.com/codemist/webai-bridge/cmd"

func main() {
	cmd.Execute()
}
