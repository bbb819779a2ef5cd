package tuple

import (
	"fmt"

	"coursedb/internal/primitives"
)

// RecordID identifies one tuple's physical storage location: the page it
// lives on and its slot within that page. Value-equal and hashable (a bare
// comparable struct, usable directly as a map key).
type RecordID struct {
	PageID primitives.PageID
	Slot   primitives.SlotID
}

func (r RecordID) String() string {
	return fmt.Sprintf("record(%s,%d)", r.PageID, r.Slot)
}
