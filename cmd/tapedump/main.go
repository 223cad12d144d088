// Command tapedump builds a tiny example expression, compiles it to an SSA
// tape and a register-allocated tape, optionally simplifies it against a
// caller-supplied choice vector, and prints both tapes.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Niels-IO/fidget/vm"
	"github.com/Niels-IO/fidget/vm/exprgraph"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run is separated out for the purpose of unit testing.
func run(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("tapedump", flag.ContinueOnError)
	flags.SetOutput(stderr)
	regLimit := flags.Uint("registers", 8, "register budget for allocation")
	choicesCSV := flags.String("choices", "", "comma-separated choices (left,right,both) to simplify against, leaves-to-root")
	expr := flags.String("expr", "minxone", "example expression to build: xplusy, minxone, maxminxyz")

	if err := flags.Parse(args); err != nil {
		return 2
	}

	g, root, err := buildExample(*expr)
	if err != nil {
		fmt.Fprintln(stderr, "tapedump:", err)
		return 1
	}

	d, err := vm.NewVmData(g, root, uint8(*regLimit))
	if err != nil {
		fmt.Fprintln(stderr, "tapedump:", err)
		return 1
	}

	if *choicesCSV != "" {
		choices, err := parseChoices(*choicesCSV)
		if err != nil {
			fmt.Fprintln(stderr, "tapedump:", err)
			return 1
		}
		ws := vm.NewWorkspace(uint8(*regLimit))
		d, err = d.Simplify(choices, ws, nil)
		if err != nil {
			fmt.Fprintln(stderr, "tapedump:", err)
			return 1
		}
	}

	if err := d.PrettyPrint(stdout); err != nil {
		fmt.Fprintln(stderr, "tapedump:", err)
		return 1
	}
	return 0
}

func buildExample(name string) (*exprgraph.Builder, exprgraph.NodeID, error) {
	b := exprgraph.NewBuilder()
	switch name {
	case "xplusy":
		x := b.Input(0)
		y := b.Input(1)
		return b, b.MakeBinary(exprgraph.Add, x, y), nil
	case "minxone":
		x := b.Input(0)
		one := b.MakeConst(1)
		return b, b.MakeBinary(exprgraph.Min, x, one), nil
	case "maxminxyz":
		x := b.Input(0)
		y := b.Input(1)
		z := b.Input(2)
		mn := b.MakeBinary(exprgraph.Min, x, y)
		return b, b.MakeBinary(exprgraph.Max, mn, z), nil
	default:
		return nil, 0, fmt.Errorf("unknown -expr %q", name)
	}
}

func parseChoices(csv string) ([]vm.Choice, error) {
	parts := strings.Split(csv, ",")
	out := make([]vm.Choice, 0, len(parts))
	for _, p := range parts {
		switch strings.TrimSpace(strings.ToLower(p)) {
		case "left":
			out = append(out, vm.ChoiceLeft)
		case "right":
			out = append(out, vm.ChoiceRight)
		case "both":
			out = append(out, vm.ChoiceBoth)
		default:
			return nil, fmt.Errorf("bad choice %q: want left, right or both", p)
		}
	}
	return out, nil
}
