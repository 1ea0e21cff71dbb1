// Command pagesim simulates the translation of virtual addresses by an MMU
// with a single-level page table and LRU page replacement.
package main

import "github.com/sarchlab/pagesim/pagesim/cmd"

func main() {
	cmd.Execute()
}
