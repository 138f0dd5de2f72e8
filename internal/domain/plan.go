package domain

// RenameItem maps one record to its target path. Items within a plan are
// kept in apply order: a record whose target is another record's current
// path always comes after it.
type RenameItem struct {
	Record     *PhotoRecord
	SourcePath string
	TargetPath string
}

// RenamePlan is a validated, collision-free mapping for a whole batch.
// Plans are built atomically; a plan that reaches the executor has
// pairwise distinct targets and no move cycles.
type RenamePlan struct {
	Items []RenameItem
}

func (p RenamePlan) Len() int {
	return len(p.Items)
}

// Moves returns only the items whose target differs from the source.
func (p RenamePlan) Moves() []RenameItem {
	var moves []RenameItem
	for _, item := range p.Items {
		if item.SourcePath != item.TargetPath {
			moves = append(moves, item)
		}
	}
	return moves
}
