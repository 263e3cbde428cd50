package main

import "github.com/nfrund/wirecall/cmd/wirecall/cmd"

func main() {
	cmd.Execute()
}
