package main

import "chatstream/internal/cli"

func main() {
	cli.Execute()
}
