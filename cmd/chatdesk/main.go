package main

import "chatdesk/cmd/cli"

func main() {
	cli.Execute()
}
