package main

import "github.com/devicelab-dev/flowtest/pkg/cli"

func main() {
	cli.Execute()
}
