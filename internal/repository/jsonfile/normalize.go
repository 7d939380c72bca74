package jsonfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sakif/ourworld/internal/model"
)

// LEGACY SHAPES:
// Older deployments wrote some records in different shapes (a wheel entry
// as a bare string, a poll option under "text" instead of "option_text",
// ...). Loading decodes the raw JSON first and upgrades each element
// through a list of shape decoders. Each decoder recognises exactly one
// historical shape; supporting a new one means appending a decoder, not
// editing the others.
//
// MISTYPED FIELDS:
// A hand-edited file may hold `"completed": 1` or `"id": "3"`. Records are
// read field by field and every field is coerced on its own, so a bad value
// costs that one field its value and never the record or its neighbours.
// Only a file that is not a JSON object at all is rejected.
//
// Decoding a canonical document yields the same document, so loading is
// idempotent.

// rawDocument mirrors model.Document with every member left undecoded.
type rawDocument struct {
	Events      json.RawMessage `json:"events"`
	Memories    json.RawMessage `json:"memories"`
	BlogPosts   json.RawMessage `json:"blogPosts"`
	DateIdeas   json.RawMessage `json:"dateIdeas"`
	BucketItems json.RawMessage `json:"bucketItems"`
	SpecialDays json.RawMessage `json:"specialDays"`
	Favorites   json.RawMessage `json:"favorites"`
	Profile     json.RawMessage `json:"profile"`
	Fun         json.RawMessage `json:"fun"`
	NextIDs     json.RawMessage `json:"nextIds"`
}

// decodeDocument parses a store file and upgrades it to the current shape.
// An error means the file is not a usable store document at all: it is not
// valid JSON, or its top level is not an object.
func decodeDocument(data []byte) (*model.Document, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("jsonfile: parsing document: %w", err)
	}

	doc := &model.Document{
		Events:      decodeRecords(raw.Events, decodeEvent),
		Memories:    decodeRecords(raw.Memories, decodeMemory),
		BlogPosts:   decodeRecords(raw.BlogPosts, decodeBlogPost),
		DateIdeas:   decodeRecords(raw.DateIdeas, decodeDateIdea),
		BucketItems: decodeRecords(raw.BucketItems, decodeBucketItem),
		SpecialDays: decodeRecords(raw.SpecialDays, decodeSpecialDay),
		Favorites:   decodeRecords(raw.Favorites, decodeFavorite),
		Profile:     decodeProfile(raw.Profile),
		Fun:         decodeFun(raw.Fun),
		NextIDs:     decodeCounters(raw.NextIDs),
	}
	repairCounters(doc)
	return doc, nil
}

// ---------------------------------------------------------------------------
// Field access

// fields is one JSON object split into its members.
type fields map[string]json.RawMessage

// objectFields splits raw into its members. ok is false when raw is not an
// object.
func objectFields(raw json.RawMessage) (f fields, ok bool) {
	if kind(raw) != '{' {
		return nil, false
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, false
	}
	return f, true
}

// kind returns the first significant byte of a JSON value, or 0.
func kind(raw json.RawMessage) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

// str reads a string. Numbers and booleans keep their literal text;
// null, objects and arrays read as "".
func (f fields) str(key string) string {
	raw := bytes.TrimSpace(f[key])
	switch kind(raw) {
	case 0, 'n', '{', '[':
		return ""
	case '"':
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return ""
		}
		return s
	default:
		return string(raw)
	}
}

// num reads an integer from a JSON number or a numeric string. Fractions
// are truncated.
func (f fields) num(key string) (int, bool) {
	raw := bytes.TrimSpace(f[key])
	text := string(raw)
	switch kind(raw) {
	case '"':
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0, false
		}
		text = strings.TrimSpace(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
	default:
		return 0, false
	}
	n, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(n) || math.Abs(n) > 1<<53 {
		return 0, false
	}
	return int(n), true
}

func (f fields) integer(key string) int {
	n, _ := f.num(key)
	return n
}

// flag reads a boolean. Non-zero numbers and "true"/"1" strings count as
// true.
func (f fields) flag(key string) bool {
	raw := f[key]
	switch kind(raw) {
	case 't':
		return true
	case 'f', 'n', 0:
		return false
	case '"':
		var s string
		if json.Unmarshal(raw, &s) == nil {
			if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
				return b
			}
		}
	}
	n, ok := f.num(key)
	return ok && n != 0
}

// asset reads an uploaded-file reference. Anything without a filename is
// no asset.
func (f fields) asset(key string) *model.Asset {
	a, ok := objectFields(f[key])
	if !ok || a.str("filename") == "" {
		return nil
	}
	return &model.Asset{
		Filename:     a.str("filename"),
		OriginalName: a.str("originalname"),
		MIME:         a.str("mime"),
	}
}

// elements splits a JSON array into its raw elements. Anything that is not
// an array (missing, null, an object) has no elements.
func elements(raw json.RawMessage) []json.RawMessage {
	out := []json.RawMessage{}
	if kind(raw) != '[' {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return []json.RawMessage{}
	}
	return out
}

// decodeRecords decodes every object element of a JSON array. Elements that
// are not objects carry no fields and are skipped.
func decodeRecords[T any](raw json.RawMessage, decode func(fields) T) []T {
	out := []T{}
	for _, e := range elements(raw) {
		if f, ok := objectFields(e); ok {
			out = append(out, decode(f))
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Collections

func decodeEvent(f fields) model.Event {
	return model.Event{
		ID:          f.integer("id"),
		Title:       f.str("title"),
		EventDate:   f.str("event_date"),
		Description: f.str("description"),
	}
}

func decodeMemory(f fields) model.Memory {
	return model.Memory{
		ID:           f.integer("id"),
		Filename:     f.str("filename"),
		OriginalName: f.str("originalname"),
		MIME:         f.str("mime"),
		Caption:      f.str("caption"),
		UploadedAt:   f.str("uploaded_at"),
	}
}

func decodeBlogPost(f fields) model.BlogPost {
	return model.BlogPost{
		ID:        f.integer("id"),
		Title:     f.str("title"),
		Body:      f.str("body"),
		Author:    f.str("author"),
		CreatedAt: f.str("created_at"),
	}
}

func decodeDateIdea(f fields) model.DateIdea {
	return model.DateIdea{
		ID:        f.integer("id"),
		Title:     f.str("title"),
		Status:    f.str("status"),
		Notes:     f.str("notes"),
		CreatedAt: f.str("created_at"),
	}
}

func decodeBucketItem(f fields) model.BucketItem {
	return model.BucketItem{
		ID:        f.integer("id"),
		Title:     f.str("title"),
		Completed: f.flag("completed"),
	}
}

func decodeSpecialDay(f fields) model.SpecialDay {
	return model.SpecialDay{
		ID:          f.integer("id"),
		Title:       f.str("title"),
		EventDate:   f.str("event_date"),
		Description: f.str("description"),
	}
}

func decodeFavorite(f fields) model.Favorite {
	return model.Favorite{
		ID:          f.integer("id"),
		Song:        f.str("song"),
		Movie:       f.str("movie"),
		Notes:       f.str("notes"),
		SongUpload:  f.asset("songUpload"),
		MovieUpload: f.asset("movieUpload"),
		CreatedAt:   f.str("created_at"),
	}
}

// decodeProfile keeps a stored profile as is and falls back to the default
// only when there is none.
func decodeProfile(raw json.RawMessage) model.Profile {
	f, ok := objectFields(raw)
	if !ok {
		return model.DefaultProfile()
	}
	return model.Profile{
		Name:   f.str("name"),
		Bio:    f.str("bio"),
		Avatar: f.asset("avatar"),
	}
}

// decodeCounters keeps every numeric counter. repairCounters fills the rest.
func decodeCounters(raw json.RawMessage) map[string]int {
	f, ok := objectFields(raw)
	if !ok {
		return nil
	}
	out := make(map[string]int, len(f))
	for key := range f {
		if n, ok := f.num(key); ok {
			out[key] = n
		}
	}
	return out
}

func decodeFun(raw json.RawMessage) model.Fun {
	fun := model.Fun{Wheel: []model.WheelEntry{}, Quiz: []model.QuizEntry{}, Polls: []model.Poll{}}
	f, ok := objectFields(raw)
	if !ok {
		return fun
	}

	for _, e := range elements(f["wheel"]) {
		fun.Wheel = append(fun.Wheel, decodeWheelEntry(e))
	}

	fun.Quiz = decodeRecords(f["quiz"], func(q fields) model.QuizEntry {
		return model.QuizEntry{Question: q.str("question"), Answer: q.str("answer")}
	})

	for i, e := range elements(f["polls"]) {
		p, ok := objectFields(e)
		if !ok {
			continue
		}
		poll := model.Poll{ID: p.integer("id"), Prompt: p.str("prompt"), Options: []model.PollOption{}}
		if poll.ID == 0 {
			poll.ID = i + 1
		}
		for j, o := range elements(p["options"]) {
			poll.Options = append(poll.Options, decodePollOption(o, j))
		}
		fun.Polls = append(fun.Polls, poll)
	}
	return fun
}

// ---------------------------------------------------------------------------
// Wheel entries

type wheelShape struct {
	name   string
	decode func(raw json.RawMessage) (model.WheelEntry, bool)
}

var wheelShapes = []wheelShape{
	// "Movie marathon"
	{name: "bare-string", decode: func(raw json.RawMessage) (model.WheelEntry, bool) {
		var s string
		if kind(raw) != '"' || json.Unmarshal(raw, &s) != nil {
			return model.WheelEntry{}, false
		}
		return model.WheelEntry{Idea: s}, true
	}},
	// {"idea": "..."} (current) and {"text": "..."} (v1)
	{name: "object", decode: func(raw json.RawMessage) (model.WheelEntry, bool) {
		o, ok := objectFields(raw)
		if !ok {
			return model.WheelEntry{}, false
		}
		idea := firstNonEmpty(o.str("idea"), o.str("text"))
		if idea == "" {
			return model.WheelEntry{}, false
		}
		return model.WheelEntry{Idea: idea}, true
	}},
}

func decodeWheelEntry(raw json.RawMessage) model.WheelEntry {
	for _, s := range wheelShapes {
		if e, ok := s.decode(raw); ok {
			return e
		}
	}
	return model.WheelEntry{Idea: "Fun idea"}
}

// ---------------------------------------------------------------------------
// Poll options

type optionShape struct {
	name   string
	decode func(raw json.RawMessage, index int) (model.PollOption, bool)
}

var optionShapes = []optionShape{
	// "Cozy movie"
	{name: "bare-string", decode: func(raw json.RawMessage, index int) (model.PollOption, bool) {
		var s string
		if kind(raw) != '"' || json.Unmarshal(raw, &s) != nil {
			return model.PollOption{}, false
		}
		return model.PollOption{ID: index + 1, OptionText: s}, true
	}},
	// {"id", "option_text", "votes"} (current), or the text under "text",
	// "option" or "idea" from earlier versions. Missing id and votes are
	// filled in.
	{name: "object", decode: func(raw json.RawMessage, index int) (model.PollOption, bool) {
		o, ok := objectFields(raw)
		if !ok {
			return model.PollOption{}, false
		}
		opt := model.PollOption{
			ID:         index + 1,
			OptionText: firstNonEmpty(o.str("option_text"), o.str("text"), o.str("option"), o.str("idea"), "Option"),
			Votes:      o.integer("votes"),
		}
		if id, ok := o.num("id"); ok {
			opt.ID = id
		}
		return opt, true
	}},
}

func decodePollOption(raw json.RawMessage, index int) model.PollOption {
	for _, s := range optionShapes {
		if o, ok := s.decode(raw, index); ok {
			return o
		}
	}
	return model.PollOption{ID: index + 1, OptionText: "Option"}
}

// ---------------------------------------------------------------------------

// repairCounters makes sure every collection has a counter and that the
// counter is above every stored id, so the allocator can never hand out an
// id that is already taken.
func repairCounters(doc *model.Document) {
	if doc.NextIDs == nil {
		doc.NextIDs = make(map[string]int, len(model.Collections))
	}
	maxIDs := map[string]int{
		model.CollectionEvents:      maxID(doc.Events),
		model.CollectionMemories:    maxID(doc.Memories),
		model.CollectionBlogPosts:   maxID(doc.BlogPosts),
		model.CollectionDateIdeas:   maxID(doc.DateIdeas),
		model.CollectionBucketItems: maxID(doc.BucketItems),
		model.CollectionSpecialDays: maxID(doc.SpecialDays),
		model.CollectionFavorites:   maxID(doc.Favorites),
	}
	for _, c := range model.Collections {
		next := doc.NextIDs[c]
		if next < 1 {
			next = 1
		}
		if m := maxIDs[c]; next <= m {
			next = m + 1
		}
		doc.NextIDs[c] = next
	}
}

func maxID[T model.Record](records []T) int {
	m := 0
	for _, r := range records {
		if id := r.RecordID(); id > m {
			m = id
		}
	}
	return m
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
