package main

import "yutai-ranker/internal/cli"

func main() {
	cli.Execute()
}
