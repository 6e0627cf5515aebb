// Program depgraph generates a Graphviz DOT description of the module
// dependency graph, coloring this kernel's own in-tree bare-name packages
// (mem, vm, proc, trap, ...) apart from the handful of real third-party
// modules they sit alongside, since `go mod graph` alone doesn't make that
// split visible.
package main

import (
	"bufio"
	"bytes"
	"os"
	"os/exec"
	"strings"
)

// inTree reports whether name looks like one of this module's own
// replace-directive packages rather than a dotted external module path.
func inTree(name string) bool {
	return !strings.Contains(name, ".") && !strings.Contains(name, "@")
}

func main() {
	cmd := exec.Command("go", "mod", "graph")
	output, err := cmd.Output()
	if err != nil {
		panic(err)
	}
	writer := bufio.NewWriter(os.Stdout)
	defer writer.Flush()
	writer.WriteString("digraph deps {\n")
	seen := map[string]bool{}
	for _, line := range bytes.Split(bytes.TrimSpace(output), []byte{'\n'}) {
		fields := bytes.Fields(line)
		if len(fields) != 2 {
			continue
		}
		from, to := string(fields[0]), string(fields[1])
		for _, n := range []string{from, to} {
			if seen[n] {
				continue
			}
			seen[n] = true
			if inTree(strings.SplitN(n, "@", 2)[0]) {
				writer.WriteString("    \"" + n + "\" [style=filled, fillcolor=lightblue];\n")
			}
		}
		writer.WriteString("    \"" + from + "\" -> \"" + to + "\";\n")
	}
	writer.WriteString("}\n")
}
