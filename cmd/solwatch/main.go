package main

import "github.com/vietddude/solwatch/internal/cli"

func main() {
	cli.Execute()
}
