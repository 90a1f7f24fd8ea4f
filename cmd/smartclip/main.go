package main

import "github.com/smartclip/smartclip/internal/cli"

func main() {
	cli.Main()
}
