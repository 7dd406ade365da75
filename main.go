package main

import "github.com/quantave/quantave/cmd"

func main() {
	cmd.Execute()
}
