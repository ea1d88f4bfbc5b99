package main

import "github.com/funvibe/bindgen/pkg/cli"

func main() {
	cli.Run()
}
