package main

import "github.com/stayswap/stayswap/cmd"

func main() {
	cmd.Execute()
}
