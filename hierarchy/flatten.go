package hierarchy

import (
	"time"

	"iconboard/core"
)

// FlattenResult reports the outcome of a flatten pass.
type FlattenResult struct {
	Objects        []core.Object `json:"objects"`
	FlattenedCount int           `json:"flattenedCount"`
	FlattenedIDs   []string      `json:"flattenedIds"`
}

// FlattenNonGroupHierarchies promotes to root any object whose parent exists
// but is not a group, stamping UpdatedAt on repaired objects. Objects whose
// parent does not exist are left untouched; dangling parents are orphaned
// elsewhere in the load pipeline. Running the pass on its own output is a
// no-op.
func FlattenNonGroupHierarchies(objects []core.Object) FlattenResult {
	index := core.IndexByID(objects)
	now := time.Now()

	result := FlattenResult{
		Objects:      make([]core.Object, 0, len(objects)),
		FlattenedIDs: []string{},
	}
	for _, obj := range objects {
		if obj.ParentID != "" {
			if parent, ok := index[obj.ParentID]; ok && parent.Type != core.TypeGroup {
				obj.ParentID = ""
				obj.UpdatedAt = now
				result.FlattenedCount++
				result.FlattenedIDs = append(result.FlattenedIDs, obj.ID)
			}
		}
		result.Objects = append(result.Objects, obj)
	}
	return result
}
