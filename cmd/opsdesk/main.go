package main

import "github.com/marcus/opsdesk/cmd/opsdesk/commands"

func main() {
	commands.Execute()
}
