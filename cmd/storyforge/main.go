// Package main is the entry point of the storyforge command line client.
//
// Usage:
//
//	storyforge [flags] <command> [args]
//
// Commands:
//
//	chat        - Interactive story session with streamed continuations
//	generate    - Generate one continuation from a prompt
//	models      - List the models offered by the backend
//	history     - List saved stories
//	show        - Print a saved story
//	delete      - Delete a saved story
//	illustrate  - Render a scene to an image file
//	narrate     - Render text to an mp3 file
package main

import (
	"fmt"
	"os"

	"storyforge/cmd/storyforge/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
