package main

import "github.com/frahmantamala/swish-payments/cmd"

func main() {
	cmd.Execute()
}
