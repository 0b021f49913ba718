package backend

import "fmt"

// Label represents a position in the generated code which is either
// a real instruction, the entry of a snippet, or a restart point in the hot path.
//
// This is exactly the same as the traditional "label" in assembly code.
type Label uint32

// LabelInvalid is the zero Label. Valid labels start at one.
const LabelInvalid Label = 0

// String implements fmt.Stringer.
func (l Label) String() string {
	return fmt.Sprintf("L%d", l)
}
