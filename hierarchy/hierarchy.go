// Package hierarchy resolves effective lock and visibility state over the
// parent-pointer object tree, collects descendant sets for cascading
// operations, and repairs malformed parent links. All traversals are
// iterative with a visited-set guard so that cyclic or dangling parent
// chains degrade to "no further ancestor" instead of hanging.
package hierarchy

import (
	"time"

	"iconboard/core"
)

// IsLocked reports the effective lock state of an object: its own lock flag
// OR'd with any ancestor's. A missing object or parent terminates the walk.
func IsLocked(objectID string, objects map[string]core.Object) bool {
	visited := make(map[string]struct{})
	current := objectID
	for {
		obj, ok := objects[current]
		if !ok {
			return false
		}
		if obj.OwnLocked() {
			return true
		}
		if obj.ParentID == "" {
			return false
		}
		if _, seen := visited[current]; seen {
			// Cycle in the parent chain; treat as reaching the root.
			return false
		}
		visited[current] = struct{}{}
		current = obj.ParentID
	}
}

// IsVisible reports the effective visibility of an object: hidden if its own
// flag or any ancestor's flag is false.
func IsVisible(objectID string, objects map[string]core.Object) bool {
	visited := make(map[string]struct{})
	current := objectID
	for {
		obj, ok := objects[current]
		if !ok {
			return true
		}
		if !obj.OwnVisible() {
			return false
		}
		if obj.ParentID == "" {
			return true
		}
		if _, seen := visited[current]; seen {
			return true
		}
		visited[current] = struct{}{}
		current = obj.ParentID
	}
}

// Descendants returns the IDs of all objects transitively parented under
// objectID, excluding objectID itself. Cycle safe.
func Descendants(objectID string, objects map[string]core.Object) map[string]struct{} {
	children := make(map[string][]string, len(objects))
	for id, obj := range objects {
		if obj.ParentID != "" {
			children[obj.ParentID] = append(children[obj.ParentID], id)
		}
	}

	result := make(map[string]struct{})
	queue := append([]string(nil), children[objectID]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, seen := result[id]; seen || id == objectID {
			continue
		}
		result[id] = struct{}{}
		queue = append(queue, children[id]...)
	}
	return result
}

// ToggleLock flips the lock flag of the object and, when it is a group,
// cascades the new value to every current descendant as one logical
// operation. It returns the changed objects for the caller to persist; a
// missing objectID returns nil.
func ToggleLock(objectID string, objects map[string]core.Object) []core.Object {
	obj, ok := objects[objectID]
	if !ok {
		return nil
	}

	newValue := !obj.OwnLocked()
	now := time.Now()

	obj.Locked = core.Bool(newValue)
	obj.UpdatedAt = now
	changed := []core.Object{obj}

	if obj.Type != core.TypeGroup {
		return changed
	}

	for id := range Descendants(objectID, objects) {
		descendant := objects[id]
		descendant.Locked = core.Bool(newValue)
		descendant.UpdatedAt = now
		changed = append(changed, descendant)
	}
	return changed
}
