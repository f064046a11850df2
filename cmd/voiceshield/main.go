// Command voiceshield protects voice recordings against speaker
// identification by adding a bounded adversarial perturbation.
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/voiceshield/cmd/voiceshield/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
