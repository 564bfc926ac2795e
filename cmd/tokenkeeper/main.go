package main

import "github.com/jmcleod/tokenkeeper/cmd/tokenkeeper/cmd"

func main() {
	cmd.Execute()
}
