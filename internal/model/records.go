package model

// Record is implemented by every collection element. Generic helpers use it
// to find and remove records by id.
type Record interface {
	RecordID() int
}

// Asset describes an uploaded blob stored in the upload directory.
// Filename is generated by the upload store; OriginalName and MIME come from
// the client.
type Asset struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"originalname"`
	MIME         string `json:"mime"`
}

// Event is an upcoming plan shown on the home page.
type Event struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	EventDate   string `json:"event_date"`
	Description string `json:"description"`
}

// Memory is a photo in the gallery. The asset fields are stored inline
// (not nested) to keep the historical document shape.
type Memory struct {
	ID           int    `json:"id"`
	Filename     string `json:"filename"`
	OriginalName string `json:"originalname"`
	MIME         string `json:"mime"`
	Caption      string `json:"caption"`
	UploadedAt   string `json:"uploaded_at"`
}

// Asset returns the blob owned by the memory.
func (m Memory) Asset() *Asset {
	if m.Filename == "" {
		return nil
	}
	return &Asset{Filename: m.Filename, OriginalName: m.OriginalName, MIME: m.MIME}
}

type BlogPost struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Author    string `json:"author"`
	CreatedAt string `json:"created_at"`
}

type DateIdea struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	Notes     string `json:"notes"`
	CreatedAt string `json:"created_at"`
}

type BucketItem struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

type SpecialDay struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	EventDate   string `json:"event_date"`
	Description string `json:"description"`
}

// Favorite is a shared song/movie pick, optionally with uploaded files.
type Favorite struct {
	ID          int    `json:"id"`
	Song        string `json:"song"`
	Movie       string `json:"movie"`
	Notes       string `json:"notes"`
	SongUpload  *Asset `json:"songUpload"`
	MovieUpload *Asset `json:"movieUpload"`
	CreatedAt   string `json:"created_at"`
}

// Assets returns the blobs owned by the favorite (zero, one or two).
func (f Favorite) Assets() []*Asset {
	var out []*Asset
	if f.SongUpload != nil {
		out = append(out, f.SongUpload)
	}
	if f.MovieUpload != nil {
		out = append(out, f.MovieUpload)
	}
	return out
}

func (e Event) RecordID() int      { return e.ID }
func (m Memory) RecordID() int     { return m.ID }
func (b BlogPost) RecordID() int   { return b.ID }
func (d DateIdea) RecordID() int   { return d.ID }
func (b BucketItem) RecordID() int { return b.ID }
func (s SpecialDay) RecordID() int { return s.ID }
func (f Favorite) RecordID() int   { return f.ID }

// Profile is the couple's public card. Avatar is nil until one is uploaded.
type Profile struct {
	Name   string `json:"name"`
	Bio    string `json:"bio"`
	Avatar *Asset `json:"avatar"`
}

func DefaultProfile() Profile {
	return Profile{Name: "Us", Bio: "Together, always."}
}
