// Command simregress records and checks regression references for a
// stochastic simulator.
package main

import (
	"os"

	"github.com/roach88/simregress/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
