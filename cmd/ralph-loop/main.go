// Command ralph-loop runs the claude CLI in a loop until it fulfils a
// completion promise.
package main

import "github.com/agusx1211/ralphloop/internal/cli"

func main() {
	cli.Execute()
}
