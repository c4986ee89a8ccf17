package speech

import (
	"sort"

	"podcaster/internal/domain"
)

// SortNewestFirst orders artifacts by last-modified time, newest first.
func SortNewestFirst(objects []domain.ArtifactInfo) {
	sort.SliceStable(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})
}
