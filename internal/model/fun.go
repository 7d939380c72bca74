package model

// Fun holds the "fun zone": a wheel of date ideas, a quiz and polls.
type Fun struct {
	Wheel []WheelEntry `json:"wheel"`
	Quiz  []QuizEntry  `json:"quiz"`
	Polls []Poll       `json:"polls"`
}

type WheelEntry struct {
	Idea string `json:"idea"`
}

type QuizEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type Poll struct {
	ID      int          `json:"id"`
	Prompt  string       `json:"prompt"`
	Options []PollOption `json:"options"`
}

// PollOption is the canonical option shape. Older documents stored options
// as bare strings or under other field names; the store's loader upgrades
// them to this shape.
type PollOption struct {
	ID         int    `json:"id"`
	OptionText string `json:"option_text"`
	Votes      int    `json:"votes"`
}

// DefaultFun is the content a new deployment starts with.
func DefaultFun() Fun {
	return Fun{
		Wheel: []WheelEntry{
			{Idea: "Surprise takeaway night"},
			{Idea: "Movie marathon"},
			{Idea: "Stargazing date"},
			{Idea: "Board game battle"},
			{Idea: "Cook together"},
		},
		Quiz: []QuizEntry{
			{Question: "First trip together?", Answer: "The beach getaway"},
			{Question: "Favorite shared meal?", Answer: "Tacos!"},
		},
		Polls: []Poll{
			{
				ID:     1,
				Prompt: "Pick tonight's vibe",
				Options: []PollOption{
					{ID: 1, OptionText: "Cozy movie"},
					{ID: 2, OptionText: "Fancy dinner"},
					{ID: 3, OptionText: "Game night"},
				},
			},
		},
	}
}
