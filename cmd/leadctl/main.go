// Command leadctl runs lead maintenance operators and admin tasks from the shell
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(defaultEnvironment()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
