package cmd

import (
	"fmt"
)

const banner = `
  _____                 _       _       _
 |_   _|               | |     | |     | |
   | |  _ __ ___  _ __ | | __ _| |_ ___| |__
   | | | '__/ _ \| '_ \| |/ _` + "`" + ` | __/ __| '_ \
  _| |_| | | (_) | | | | | (_| | || (__| | | |
 |_____|_|  \___/|_| |_|_|\__,_|\__\___|_| |_|

`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Session Management Service - Version %s\x1b[0m\n\n", Version)
}
