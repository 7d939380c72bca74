// Package model defines the data structures used throughout the application.
//
// THE STORE DOCUMENT:
// All application data lives in ONE JSON document (store.json). It holds a
// handful of named collections, two singleton records (profile and fun) and
// a per-collection id counter:
//
//	{
//	  "events": [...], "memories": [...], "blogPosts": [...], ...
//	  "profile": {...},
//	  "fun": {...},
//	  "nextIds": {"events": 3, "memories": 1, ...}
//	}
//
// The JSON field names match existing store files exactly, so a document
// written by an older deployment loads unchanged.
package model

import (
	"encoding/json"
	"fmt"
)

// Collection names. They double as keys of Document.NextIDs.
const (
	CollectionEvents      = "events"
	CollectionMemories    = "memories"
	CollectionBlogPosts   = "blogPosts"
	CollectionDateIdeas   = "dateIdeas"
	CollectionBucketItems = "bucketItems"
	CollectionSpecialDays = "specialDays"
	CollectionFavorites   = "favorites"
)

// Collections lists every id-bearing collection in document order.
var Collections = []string{
	CollectionEvents,
	CollectionMemories,
	CollectionBlogPosts,
	CollectionDateIdeas,
	CollectionBucketItems,
	CollectionSpecialDays,
	CollectionFavorites,
}

// Document is the whole persisted state of the application.
//
// OWNERSHIP:
// The store publishes one *Document at a time. A published document is
// never modified again: every mutation works on a Clone() and the clone is
// published only after it has been written to disk. Code holding a
// snapshot must treat it as read-only.
type Document struct {
	Events      []Event        `json:"events"`
	Memories    []Memory       `json:"memories"`
	BlogPosts   []BlogPost     `json:"blogPosts"`
	DateIdeas   []DateIdea     `json:"dateIdeas"`
	BucketItems []BucketItem   `json:"bucketItems"`
	SpecialDays []SpecialDay   `json:"specialDays"`
	Favorites   []Favorite     `json:"favorites"`
	Profile     Profile        `json:"profile"`
	Fun         Fun            `json:"fun"`
	NextIDs     map[string]int `json:"nextIds"`
}

// AllocateID returns the next identifier for the collection and advances
// the counter. Identifiers are never handed out twice, even after the
// record that used one is deleted.
//
// Only call this on a document you are mutating inside a store update.
func (d *Document) AllocateID(collection string) int {
	if d.NextIDs == nil {
		d.NextIDs = make(map[string]int, len(Collections))
	}
	id := d.NextIDs[collection]
	if id < 1 {
		id = 1
	}
	d.NextIDs[collection] = id + 1
	return id
}

// Clone returns a deep copy of the document.
//
// A JSON round trip is the simplest correct deep copy here: the document is
// plain data and the store serializes it on every write anyway.
func (d *Document) Clone() (*Document, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("model: cloning document: %w", err)
	}
	var c Document
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("model: cloning document: %w", err)
	}
	return &c, nil
}

// NewDocument returns the seeded document used for a fresh deployment and
// to recover from an unreadable store file.
func NewDocument() *Document {
	next := make(map[string]int, len(Collections))
	for _, c := range Collections {
		next[c] = 1
	}
	return &Document{
		Events:      []Event{},
		Memories:    []Memory{},
		BlogPosts:   []BlogPost{},
		DateIdeas:   []DateIdea{},
		BucketItems: []BucketItem{},
		SpecialDays: []SpecialDay{},
		Favorites:   []Favorite{},
		Profile:     DefaultProfile(),
		Fun:         DefaultFun(),
		NextIDs:     next,
	}
}
