package match

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Pair is a word and its canonical translation
type Pair struct {
	Source string
	Target string
}

// DefaultPairs is used when no dictionary file is configured
var DefaultPairs = []Pair{
	{"cane", "dog"}, {"gatto", "cat"}, {"casa", "house"}, {"albero", "tree"},
	{"libro", "book"}, {"acqua", "water"}, {"fuoco", "fire"}, {"sole", "sun"},
	{"luna", "moon"}, {"mare", "sea"}, {"strada", "road"}, {"mela", "apple"},
	{"pane", "bread"}, {"finestra", "window"}, {"porta", "door"}, {"tavolo", "table"},
	{"sedia", "chair"}, {"fiore", "flower"}, {"cielo", "sky"}, {"neve", "snow"},
	{"pioggia", "rain"}, {"vento", "wind"}, {"notte", "night"}, {"giorno", "day"},
}

// Dictionary holds the translation pairs matches draw their words from
type Dictionary struct {
	mu    sync.RWMutex
	pairs []Pair
}

// NewDictionary creates an empty dictionary
func NewDictionary() *Dictionary {
	return &Dictionary{}
}

// LoadFromFile loads pairs from a file with one "source<TAB>target" pair per
// line. Blank lines and lines starting with '#' are skipped.
func (d *Dictionary) LoadFromFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var pairs []Pair
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		source, target, ok := strings.Cut(text, "\t")
		source, target = strings.TrimSpace(source), strings.TrimSpace(target)
		if !ok || source == "" || target == "" || strings.ContainsAny(source, " ") {
			return fmt.Errorf("%s:%d: expected \"source<TAB>target\"", path, line)
		}
		pairs = append(pairs, Pair{Source: source, Target: target})
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	return d.LoadPairs(pairs)
}

// LoadPairs replaces the dictionary content
func (d *Dictionary) LoadPairs(pairs []Pair) error {
	if len(pairs) == 0 {
		return fmt.Errorf("dictionary: no pairs to load")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pairs = make([]Pair, len(pairs))
	copy(d.pairs, pairs)
	return nil
}

// Len returns the number of pairs
func (d *Dictionary) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.pairs)
}

// At returns the pair stored at index i
func (d *Dictionary) At(i int) Pair {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.pairs[i]
}
