// Package identity produces human-friendly anonymous nicknames for chatroom
// participants. Names follow an adjective+noun pattern ("Crimson Otter") and
// carry no uniqueness guarantee: display names are not identifiers, and
// collisions between sessions are tolerated by the rest of the system.
package identity

import (
	"math/rand"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Word pools are kept lowercase; casing is applied at generation time so the
// output style is controlled in one place.
var (
	adjectives = []string{
		"amber", "brave", "breezy", "bright", "calm", "cheery", "clever",
		"cosmic", "crimson", "crispy", "dapper", "eager", "fancy", "frosty",
		"gentle", "golden", "happy", "jolly", "lively", "lucky", "mellow",
		"merry", "misty", "nimble", "peppy", "plucky", "quirky", "rustic",
		"silver", "snappy", "spicy", "sunny", "swift", "toasty", "velvet",
		"witty", "zesty",
	}
	nouns = []string{
		"badger", "bistro", "falcon", "fox", "gecko", "heron", "lark",
		"lobster", "lynx", "mango", "marmot", "noodle", "nutmeg", "olive",
		"otter", "owl", "panda", "pepper", "pickle", "plum", "raccoon",
		"raven", "saffron", "sparrow", "taco", "tiger", "truffle", "walrus",
		"wombat",
	}
)

// Generator composes random nicknames from the word pools. Safe for
// concurrent use: mu guards both the random source and the caser, since a
// cases.Caser is stateful and must not be shared between goroutines. Calling
// Generate repeatedly is the intended way to reroll a suggestion before the
// caller commits to one.
type Generator struct {
	mu    sync.Mutex
	rng   *rand.Rand
	caser cases.Caser
}

// NewGenerator returns a Generator seeded from the current time.
func NewGenerator() *Generator {
	return newGenerator(rand.NewSource(time.Now().UnixNano()))
}

// NewSeededGenerator returns a deterministic Generator for tests.
func NewSeededGenerator(seed int64) *Generator {
	return newGenerator(rand.NewSource(seed))
}

func newGenerator(src rand.Source) *Generator {
	return &Generator{
		rng:   rand.New(src),
		caser: cases.Title(language.English),
	}
}

// Generate returns a fresh "Adjective Noun" nickname. No uniqueness is
// guaranteed across calls or sessions.
func (g *Generator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	adj := adjectives[g.rng.Intn(len(adjectives))]
	noun := nouns[g.rng.Intn(len(nouns))]
	return g.caser.String(adj) + " " + g.caser.String(noun)
}
