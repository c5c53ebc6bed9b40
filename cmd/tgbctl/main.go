package main

import "github.com/matheus3301/tgbridge/internal/cli"

func main() {
	cli.Execute()
}
