package main

import "github.com/arclet/subprocess/internal/cli"

func main() {
	cli.Execute()
}
