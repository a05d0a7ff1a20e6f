package main

import "github.com/oshokin/plugin-publisher/cmd/plugin-publisher/cmd"

func main() {
	cmd.Execute()
}
