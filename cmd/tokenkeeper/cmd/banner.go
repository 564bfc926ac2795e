package cmd

import (
	"fmt"
)

const banner = `
  _        _              _
 | |_ ___ | | _____ _ __ | | _____  ___ _ __   ___ _ __
 | __/ _ \| |/ / _ \ '_ \| |/ / _ \/ _ \ '_ \ / _ \ '__|
 | || (_) |   <  __/ | | |   <  __/  __/ |_) |  __/ |
  \__\___/|_|\_\___|_| |_|_|\_\___|\___| .__/ \___|_|
                                       |_|
`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Development Auth Server - Version %s\x1b[0m\n\n", Version)
}
