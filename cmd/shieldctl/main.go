package main

import "github.com/raaihank/prompt-shield/internal/cli"

func main() {
	cli.Execute()
}
