package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/grantcarthew/vlc-control/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		// Print the error unless a command handler already did.
		if !cli.IsPrintedError(err) {
			if cli.JSONOutput {
				resp := map[string]any{
					"ok":    false,
					"error": err.Error(),
				}
				_ = json.NewEncoder(os.Stderr).Encode(resp)
			} else {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			}
		}
		os.Exit(1)
	}
}
