// Command server runs the Word Quizzle server (installed as wqserver).
package main

import "github.com/mcoot/wordquizzle/internal/cli"

func main() {
	cli.Execute()
}
