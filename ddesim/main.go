// Command ddesim runs the demonstration models of the DDE domain.
package main

import "github.com/sarchlab/ddesim/ddesim/cmd"

func main() {
	cmd.Execute()
}
