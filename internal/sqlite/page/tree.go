package page

// WalkBTree decodes every page reachable from the b-tree rooted at
// rootNumber: the root itself, plus every page linked transitively via
// table-interior cells' ChildPage and the interior header's rightmost
// pointer. Pages are returned in the order they're discovered (root
// first, a breadth-first fan-out after that) — callers that need leaf
// cells in key order should sort on Cells[i].RowID themselves, since
// SQLite's b-tree ordering is already reflected in cell-pointer-array
// order within each leaf.
func WalkBTree(rootNumber uint32, src Source) ([]*BTreePage, error) {
	usable := src.UsableSize()
	seen := map[uint32]bool{}
	var pages []*BTreePage
	queue := []uint32{rootNumber}

	for len(queue) > 0 {
		number := queue[0]
		queue = queue[1:]
		if number == 0 || seen[number] {
			continue
		}
		seen[number] = true

		data, err := src.PageBytes(number)
		if err != nil {
			return nil, err
		}
		p, err := DecodeBTreePage(number, data, usable)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)

		if p.Header.IsInterior() {
			for _, c := range p.Cells {
				queue = append(queue, c.ChildPage)
			}
			queue = append(queue, p.Header.RightmostChild)
		}
	}
	return pages, nil
}

// LeafCells returns every leaf cell across the leaf pages in pages, in
// the pages slice's discovery order.
func LeafCells(pages []*BTreePage) []*Cell {
	var cells []*Cell
	for _, p := range pages {
		if p.Header.IsLeaf() {
			cells = append(cells, p.Cells...)
		}
	}
	return cells
}

// PageNumbers returns the page numbers of pages, in order.
func PageNumbers(pages []*BTreePage) []uint32 {
	out := make([]uint32, len(pages))
	for i, p := range pages {
		out[i] = p.Number
	}
	return out
}
