// Command osvm runs workloads against the virtual memory system.
package main

import "github.com/sarchlab/osvm/cmd/osvm/cmd"

func main() {
	cmd.Execute()
}
