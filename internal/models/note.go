// Package models defines the domain types shared across mocsync packages.
package models

import "time"

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Entry is one immediate child of a vault folder.
type Entry struct {
	Path  string `json:"path"`
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
}

// LinkKind distinguishes the two supported link markups.
type LinkKind string

const (
	LinkWiki     LinkKind = "wiki"
	LinkMarkdown LinkKind = "markdown"
)

// Link is a reference extracted from a document body.
type Link struct {
	// Original is the literal markup as written, e.g. "[[Delta|d]]".
	Original string   `json:"original"`
	Target   string   `json:"target"`
	Display  string   `json:"display"`
	Kind     LinkKind `json:"kind"`
	// Line and Col locate Original in the full document (0-based, byte column).
	Line int `json:"line"`
	Col  int `json:"col"`
}

// HubInfo summarises a discovered hub for listings.
type HubInfo struct {
	Path   string   `json:"path"`
	Name   string   `json:"name"`
	Folder string   `json:"folder"`
	State  string   `json:"state"`
	Items  []string `json:"items"`
}
