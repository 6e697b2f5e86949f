package main

import "github.com/openrover/driverstation/cmd/driverstation/commands"

func main() {
	commands.Execute()
}
