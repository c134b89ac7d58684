package models

// ItemType distinguishes files from folders in the project tree.
type ItemType string

const (
	ItemFile   ItemType = "file"
	ItemFolder ItemType = "folder"
)

// FileItem is a node of the project's virtual filesystem.
//
// Path is the full slash-separated path from the project root; a root-level
// node's path equals its name. Content is only meaningful for files and
// Children only for folders. Children keep discovery order.
type FileItem struct {
	Name     string      `json:"name"`
	Type     ItemType    `json:"type"`
	Path     string      `json:"path"`
	Content  string      `json:"content,omitempty"`
	Children []*FileItem `json:"children,omitempty"`
}

// IsFolder reports whether the item is a folder.
func (f *FileItem) IsFolder() bool {
	return f.Type == ItemFolder
}
