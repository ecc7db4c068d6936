// Offline small talk — a word-level markov chain over a built-in corpus.
package dialogue

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sort"
	"strings"
)

// maxWords bounds a generated sentence.
const maxWords = 18

var friendlyCorpus = []string{
	"it is so good to see you again",
	"it is a lovely day for a walk in the park",
	"i was just thinking about you this morning",
	"you always know how to make me smile",
	"we should grab a coffee together sometime soon",
	"i love how quiet the town is this time of day",
	"have you tried the new pastries at the cafe",
}

var neutralCorpus = []string{
	"the weather has been strange lately",
	"i am just on my way to the shop",
	"have you heard anything new around town",
	"this time of day the town is quiet",
	"i have been busy at the office all week",
	"the park was busy this morning",
	"i think i need a coffee soon",
}

var tenseCorpus = []string{
	"i am not really in the mood to talk",
	"you again i was hoping for a quiet day",
	"i have a lot on my mind right now",
	"can we talk about this some other time",
	"i am busy and in a hurry today",
}

// chain is a first-order transition table. Word 0 is the sentence boundary.
type chain struct {
	words   []string
	lookup  map[string]int
	next    [][]int
	weights [][]int
}

func newChain(corpus []string) *chain {
	c := &chain{
		words:   []string{""},
		lookup:  map[string]int{"": 0},
		next:    [][]int{nil},
		weights: [][]int{nil},
	}
	for _, line := range corpus {
		prev := 0
		for _, w := range strings.Fields(line) {
			id := c.word(w)
			c.add(prev, id, 1)
			prev = id
		}
		c.add(prev, 0, 1)
	}
	return c
}

func (c *chain) word(w string) int {
	if id, ok := c.lookup[w]; ok {
		return id
	}
	id := len(c.words)
	c.words = append(c.words, w)
	c.lookup[w] = id
	c.next = append(c.next, nil)
	c.weights = append(c.weights, nil)
	return id
}

// add records a transition a→b, keeping next[a] sorted.
func (c *chain) add(a, b, weight int) {
	next, weights := c.next[a], c.weights[a]

	i := sort.SearchInts(next, b)
	if i < len(next) && next[i] == b {
		weights[i] += weight
		return
	}

	next = append(next, 0)
	copy(next[i+1:], next[i:])
	next[i] = b
	c.next[a] = next

	weights = append(weights, 0)
	copy(weights[i+1:], weights[i:])
	weights[i] = weight
	c.weights[a] = weights
}

// choose picks a successor of id with probability proportional to weight.
func (c *chain) choose(rng *rand.Rand, id int) int {
	i, sum := -1, 0
	for j, w := range c.weights[id] {
		sum += w
		if rng.Intn(sum) < w {
			i = j
		}
	}
	if i < 0 {
		return 0
	}
	return c.next[id][i]
}

func (c *chain) sentence(rng *rand.Rand) string {
	var words []string
	for id := c.choose(rng, 0); id != 0 && len(words) < maxWords; id = c.choose(rng, id) {
		words = append(words, c.words[id])
	}
	return strings.Join(words, " ")
}

// SmallTalk generates short in-character openers without any network call.
// Output depends only on the seed and the request, so it is reproducible
// regardless of how many conversations run at once.
type SmallTalk struct {
	seed   int64
	chains [3]*chain // Indexed by Tone
}

// NewSmallTalk builds the offline generator.
func NewSmallTalk(seed int64) *SmallTalk {
	s := &SmallTalk{seed: seed}
	s.chains[ToneNeutral] = newChain(neutralCorpus)
	s.chains[ToneFriendly] = newChain(friendlyCorpus)
	s.chains[ToneTense] = newChain(tenseCorpus)
	return s
}

// Converse implements Generator.
func (s *SmallTalk) Converse(ctx context.Context, req Request) (Reply, error) {
	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}

	rng := rand.New(rand.NewSource(s.requestSeed(req)))
	tone := pickTone(rng, req.Relationship)

	line := s.chains[tone].sentence(rng)
	if line == "" {
		return Reply{}, ErrEmptyReply
	}
	line = strings.ToUpper(line[:1]) + line[1:]

	var greeting string
	switch tone {
	case ToneFriendly:
		greeting = "Hi " + req.Listener.Name + "! "
	case ToneTense:
		greeting = "Oh, " + req.Listener.Name + ". "
	default:
		greeting = "Hello " + req.Listener.Name + ". "
	}
	return Reply{Line: greeting + line + ".", Tone: tone}, nil
}

func (s *SmallTalk) requestSeed(req Request) int64 {
	h := fnv.New64a()
	h.Write([]byte(req.Speaker.Name))
	h.Write([]byte{0})
	h.Write([]byte(req.Listener.Name))
	var b [8]byte
	for i := range b {
		b[i] = byte(req.Tick >> (8 * i))
	}
	h.Write(b[:])
	return s.seed ^ int64(h.Sum64())
}

// pickTone leans friendly for good relationships and tense for bad ones.
func pickTone(rng *rand.Rand, relationship float64) Tone {
	r := rng.Float64()
	friendly := 0.4 + relationship*0.4
	tense := 0.1 - relationship*0.2
	if tense < 0.02 {
		tense = 0.02
	}
	switch {
	case r < tense:
		return ToneTense
	case r < tense+friendly:
		return ToneFriendly
	default:
		return ToneNeutral
	}
}
