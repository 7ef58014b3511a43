// Package layout classifies vault paths against the hub/item folder
// convention. Every function is pure over slash-separated vault-relative
// paths and a hub set taken from the metadata cache.
package layout

import (
	"path"
	"strings"

	"github.com/starford/mocsync/internal/models"
)

// DocumentExt is the extension of document files.
const DocumentExt = ".md"

// HubSet is the set of document paths flagged as hubs.
type HubSet map[string]struct{}

// NewHubSet builds a HubSet from a list of hub document paths.
func NewHubSet(paths []string) HubSet {
	s := make(HubSet, len(paths))
	for _, p := range paths {
		s[p] = struct{}{}
	}
	return s
}

// Has reports whether p is a hub document.
func (s HubSet) Has(p string) bool {
	_, ok := s[p]
	return ok
}

// IsDocument reports whether p names a document file.
func IsDocument(p string) bool {
	return path.Ext(p) == DocumentExt
}

// Stem returns the base name of p without the document extension.
func Stem(p string) string {
	return strings.TrimSuffix(path.Base(p), DocumentExt)
}

// Dir returns the parent folder of p, with "" for the vault root.
func Dir(p string) string {
	d := path.Dir(p)
	if d == "." || d == "/" {
		return ""
	}
	return d
}

// Join composes a vault-relative path, treating "" as the root.
func Join(elem ...string) string {
	p := path.Join(elem...)
	if p == "." {
		return ""
	}
	return p
}

// IsHidden reports whether the final element of p starts with a dot.
func IsHidden(p string) bool {
	return strings.HasPrefix(path.Base(p), ".")
}

// IsHubPage reports whether p is a document in the hub set.
func IsHubPage(p string, hubs HubSet) bool {
	return IsDocument(p) && hubs.Has(p)
}

// IsHubFolder reports whether dir is the colocated folder of some hub.
func IsHubFolder(dir string, hubs HubSet) bool {
	if dir == "" {
		return false
	}
	return hubs.Has(Join(dir, path.Base(dir)+DocumentExt))
}

// IsItemPage reports whether p is a document named after its parent folder
// where that folder is not itself a hub folder.
func IsItemPage(p string, hubs HubSet) bool {
	if !IsDocument(p) || hubs.Has(p) {
		return false
	}
	parent := Dir(p)
	if parent == "" || path.Base(parent) != Stem(p) {
		return false
	}
	return !IsHubFolder(parent, hubs)
}

// IsColocated reports whether the hub document sits in a folder of its own name.
func IsColocated(hub string) bool {
	parent := Dir(hub)
	return parent != "" && path.Base(parent) == Stem(hub)
}

// HubFolderFor returns the folder a hub document belongs in: its parent when
// already colocated, otherwise a same-named folder next to it.
func HubFolderFor(hub string) string {
	if IsColocated(hub) {
		return Dir(hub)
	}
	return Join(Dir(hub), Stem(hub))
}

// HubPageFor returns where the hub document lives once colocated.
func HubPageFor(hub string) string {
	folder := HubFolderFor(hub)
	return Join(folder, path.Base(folder)+DocumentExt)
}

// ItemFolderFor returns the folder of item under hub.
func ItemFolderFor(hub, item string) string {
	return Join(HubFolderFor(hub), item)
}

// ItemPageFor returns the entry document of item under hub.
func ItemPageFor(hub, item string) string {
	return Join(ItemFolderFor(hub, item), item+DocumentExt)
}

// EntryPage returns the entry document path of folder dir.
func EntryPage(dir string) string {
	return Join(dir, path.Base(dir)+DocumentExt)
}

// OwningHub returns the hub whose folder is the parent or grandparent of p.
// The nearest hub wins.
func OwningHub(p string, hubs HubSet) (string, bool) {
	dir := Dir(p)
	for i := 0; i < 2 && dir != ""; i++ {
		hub := EntryPage(dir)
		if hub != p && hubs.Has(hub) {
			return hub, true
		}
		dir = Dir(dir)
	}
	return "", false
}

// Role is the structural role of a path relative to one hub.
type Role int

const (
	Unrelated Role = iota
	Hub
	HubFolder
	Item
	ItemFolder
	Attachment
)

func (r Role) String() string {
	switch r {
	case Hub:
		return "hub"
	case HubFolder:
		return "hub_folder"
	case Item:
		return "item"
	case ItemFolder:
		return "item_folder"
	case Attachment:
		return "attachment"
	default:
		return "unrelated"
	}
}

// Snapshot is the classification of one hub folder listing.
type Snapshot struct {
	Hub    string
	Folder string
	Roles  map[string]Role
	// Items holds the names of item folders in listing order.
	Items []string
	// Incomplete holds item folders lacking their entry document.
	Incomplete []string
	// Strays holds documents at hub level other than the hub itself.
	Strays []string
	// Files holds non-document files at hub level.
	Files []string
}

// Classify computes the snapshot of a hub folder from its immediate
// children. exists reports whether a path is present on disk.
func Classify(hub string, children []models.Entry, attachments string, exists func(string) bool) Snapshot {
	folder := HubFolderFor(hub)
	snap := Snapshot{
		Hub:    hub,
		Folder: folder,
		Roles:  map[string]Role{folder: HubFolder, hub: Hub},
	}
	for _, c := range children {
		switch {
		case c.Path == hub:
			continue
		case IsHidden(c.Path):
			snap.Roles[c.Path] = Unrelated
		case c.IsDir && c.Name == attachments:
			snap.Roles[c.Path] = Unrelated
		case c.IsDir:
			snap.Roles[c.Path] = ItemFolder
			snap.Items = append(snap.Items, c.Name)
			entry := EntryPage(c.Path)
			if exists(entry) {
				snap.Roles[entry] = Item
			} else {
				snap.Incomplete = append(snap.Incomplete, c.Name)
			}
		case IsDocument(c.Path):
			snap.Roles[c.Path] = Unrelated
			snap.Strays = append(snap.Strays, c.Path)
		default:
			snap.Roles[c.Path] = Attachment
			snap.Files = append(snap.Files, c.Path)
		}
	}
	return snap
}

// Role returns the classification of p, Unrelated when unknown.
func (s Snapshot) Role(p string) Role {
	return s.Roles[p]
}
