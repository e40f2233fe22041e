// Command syncx tracks, persists and shares changes to a structured data file.
package main

import "github.com/bolasblack/syncx/internal/cli"

func main() {
	cli.Execute()
}
