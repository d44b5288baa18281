package filesystem

import (
	"io/fs"
)

// TreeWalker walks directory trees.
type TreeWalker interface {
	WalkDir(root string, walkFunction fs.WalkDirFunc) error
}

// DirectorySize sums the sizes of regular files beneath root. Unreadable entries are ignored,
// so a missing directory measures as zero.
func DirectorySize(walker TreeWalker, root string) int64 {
	var totalSize int64
	_ = walker.WalkDir(root, func(path string, directoryEntry fs.DirEntry, walkError error) error {
		if walkError != nil {
			return nil
		}
		if !directoryEntry.Type().IsRegular() {
			return nil
		}
		fileInfo, infoError := directoryEntry.Info()
		if infoError != nil {
			return nil
		}
		totalSize += fileInfo.Size()
		return nil
	})
	return totalSize
}
