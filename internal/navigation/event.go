package navigation

// EventKind distinguishes the three inbound event shapes.
type EventKind int

const (
	EventCommand EventKind = iota + 1
	EventMenuSelection
	EventFreeText
)

// Event is one inbound chat event.
type Event struct {
	Kind     EventKind
	UserID   string
	Username string
	Command  string
	Args     string
	Token    string
	Text     string
}

// Option is a selectable menu button.
type Option struct {
	Label string
	Token string
}

// Link is a button that opens an external URL.
type Link struct {
	Label string
	URL   string
}

// Message is one outbound chat message. Edit asks the transport to replace the message
// the selection came from instead of sending a new one.
type Message struct {
	Text    string
	Options [][]Option
	Links   []Link
	Edit    bool
}

// Reply is everything produced for one event.
type Reply struct {
	Messages []Message
}

// Single wraps one message as a reply.
func Single(msg Message) Reply {
	return Reply{Messages: []Message{msg}}
}

// Column lays options out one per row.
func Column(opts ...Option) [][]Option {
	rows := make([][]Option, 0, len(opts))
	for _, o := range opts {
		rows = append(rows, []Option{o})
	}
	return rows
}
