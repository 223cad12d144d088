// Package vmerr defines the error kinds the tape compilation and
// simplification subsystem can raise. Errors are plain stdlib values
// (sentinels and one structured type), wrapped with fmt.Errorf where extra
// context is useful, following the teacher's fmt.Errorf/errors.New idiom
// rather than a bespoke error-interface hierarchy.
package vmerr

import (
	"errors"
	"fmt"
)

// ErrBadNode is returned when an expression graph walk reaches a node id
// the graph does not recognize.
var ErrBadNode = errors.New("vm: node not present in expression graph")

// ErrEmptyTape is returned when building a tape from a graph with no root.
var ErrEmptyTape = errors.New("vm: tape has no root")

// ErrTooManySlots is returned by the SSA builder when an expression graph
// has more distinct values than a 32-bit slot id can name.
var ErrTooManySlots = errors.New("vm: expression exceeds 32-bit slot count")

// ErrInternalInvariant marks a programming-error condition: a caller
// violated a documented precondition (e.g. passed Choice values containing
// ChoiceUnknown to Simplify). The reference implementation this module
// ports aborts on this condition; here it is surfaced as an error instead.
var ErrInternalInvariant = errors.New("vm: internal invariant violated")

// BadChoiceSlice reports that the choice vector passed to Simplify does not
// have exactly as many entries as the source tape's choice count.
type BadChoiceSlice struct {
	Got, Expected int
}

func (e *BadChoiceSlice) Error() string {
	return fmt.Sprintf("vm: bad choice slice: got %d choices, expected %d", e.Got, e.Expected)
}

// NewBadChoiceSlice constructs the error Simplify returns when choices.len()
// != source.ChoiceCount().
func NewBadChoiceSlice(got, expected int) error {
	return &BadChoiceSlice{Got: got, Expected: expected}
}
