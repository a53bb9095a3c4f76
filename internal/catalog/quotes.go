package catalog

import "time"

// Quotes is the motivational set used by /motivation and the daily broadcast.
var Quotes = []string{
	"💡 Success begins with smart questions. Ask boldly, act wisely.",
	"🚀 Discipline outperforms motivation every single day.",
	"🔥 Learn, build, repeat. Your AI journey has just started.",
	"💼 Great business minds don’t wait, they create.",
	"🌎 Every answer you need is one smart question away.",
	"Small wins daily create unstoppable momentum.",
	"Systems build freedom. Focus builds fortune.",
	"Every expert was once curious. Stay curious.",
}

// QuoteFor picks the quote of the calendar day of t, so every process agrees.
func QuoteFor(t time.Time) string {
	y, m, d := t.Date()
	days := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
	return Quotes[int(days%int64(len(Quotes)))]
}
