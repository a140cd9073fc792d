package main

import "github.com/SoarinFerret/IdleWarden/cmd/iwctl/arg"

func main() {
	arg.Execute()
}
