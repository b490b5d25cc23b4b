// Command gentoken generates a random compliance token for the bus.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

func main() {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(hex.EncodeToString(buf))
	fmt.Fprintln(os.Stderr, "set COMPLIANCE_TOKEN to this value on the server and in every agent")
}
