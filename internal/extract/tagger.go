package extract

import (
	"strings"
	"unicode"
)

// Tagger performs part-of-speech tagging with context awareness, ported
// directly from the teacher's pkg/scanner/chunker.Tagger: a dictionary +
// suffix-heuristic baseline pass followed by a context-reinforcement pass.
type Tagger struct {
	lexicon map[string]POS
}

// NewTagger creates a Tagger with the default lexicon loaded.
func NewTagger() *Tagger {
	t := &Tagger{lexicon: make(map[string]POS)}
	t.loadDefaultLexicon()
	return t
}

// Tag assigns a POS to each word via two passes: a static baseline lookup,
// then dynamic reinforcement rules that resolve local ambiguity.
func (t *Tagger) Tag(words []string) []POS {
	tags := make([]POS, len(words))

	for i, word := range words {
		tags[i] = t.lookupBaseline(word)
	}

	for i := 0; i < len(tags); i++ {
		currentWord := words[i]
		currentTag := tags[i]

		var prevTag POS = Other
		if i > 0 {
			prevTag = tags[i-1]
		}

		// Determiner/Adjective forces a following verb-like ambiguous word to Noun.
		if (prevTag == Determiner || prevTag.IsModifier()) && currentTag.IsVerbal() {
			tags[i] = Noun
			continue
		}

		// Modal forces the following nominal-looking word to Verb.
		if prevTag == Modal && currentTag.IsNominal() {
			tags[i] = Verb
			continue
		}

		// Infinitive "to" forces Verb; a proper noun after "to" ("sailed to
		// Wano") is a destination and keeps its tag.
		if i > 0 && isTo(words[i-1]) && currentTag.IsNominal() && currentTag != ProperNoun {
			tags[i] = Verb
			continue
		}

		// "of" forces Noun.
		if i > 0 && isOf(words[i-1]) && currentTag.IsVerbal() {
			tags[i] = Noun
			continue
		}

		if len(currentWord) == 1 && unicode.IsPunct(rune(currentWord[0])) {
			tags[i] = Punctuation
		}
	}

	return tags
}

func (t *Tagger) lookupBaseline(word string) POS {
	lower := fastLower(word)
	if pos, ok := t.lexicon[lower]; ok {
		return pos
	}
	return t.inferPOS(word)
}

func (t *Tagger) inferPOS(word string) POS {
	lower := fastLower(word)

	if len(word) == 1 {
		if unicode.IsPunct(rune(word[0])) {
			return Punctuation
		}
	}

	if len(word) > 0 && unicode.IsUpper(rune(word[0])) {
		return ProperNoun
	}

	switch {
	case strings.HasSuffix(lower, "ly"):
		return Adverb
	case strings.HasSuffix(lower, "ing"), strings.HasSuffix(lower, "ed"), strings.HasSuffix(lower, "en"):
		return Verb
	case strings.HasSuffix(lower, "ness"), strings.HasSuffix(lower, "tion"),
		strings.HasSuffix(lower, "ment"), strings.HasSuffix(lower, "ity"),
		strings.HasSuffix(lower, "er"), strings.HasSuffix(lower, "or"):
		return Noun
	case strings.HasSuffix(lower, "ful"), strings.HasSuffix(lower, "less"),
		strings.HasSuffix(lower, "ous"), strings.HasSuffix(lower, "ive"),
		strings.HasSuffix(lower, "able"), strings.HasSuffix(lower, "ible"):
		return Adjective
	}

	return Noun
}

// fastLower avoids an allocation for words that are already lowercase.
func fastLower(s string) string {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			return strings.ToLower(s)
		}
	}
	return s
}

func isTo(s string) bool {
	return len(s) == 2 && (s[0] == 't' || s[0] == 'T') && (s[1] == 'o' || s[1] == 'O')
}

func isOf(s string) bool {
	return len(s) == 2 && (s[0] == 'o' || s[0] == 'O') && (s[1] == 'f' || s[1] == 'F')
}

func (t *Tagger) loadDefaultLexicon() {
	for _, w := range []string{"the", "a", "an", "this", "that", "these", "those", "my", "your",
		"his", "her", "its", "our", "their", "some", "any", "no", "every", "each", "all", "both",
		"few", "many", "much", "most", "other"} {
		t.lexicon[w] = Determiner
	}

	for _, w := range []string{"in", "on", "at", "to", "for", "with", "by", "from", "of", "about",
		"into", "through", "during", "before", "after", "above", "below", "between", "under", "over",
		"against", "among", "around", "behind", "beside", "beyond", "near", "toward", "towards",
		"upon", "within", "without", "across", "along", "inside", "outside", "throughout"} {
		t.lexicon[w] = Preposition
	}

	for _, w := range []string{"is", "are", "was", "were", "be", "been", "being", "am",
		"have", "has", "had", "having", "do", "does", "did", "doing"} {
		t.lexicon[w] = Auxiliary
	}

	for _, w := range []string{"can", "could", "will", "would", "shall", "should", "may", "might", "must"} {
		t.lexicon[w] = Modal
	}

	for _, w := range []string{"and", "or", "but", "nor", "yet", "so", "because", "although",
		"while", "if", "unless", "until", "since", "when", "where", "whether"} {
		t.lexicon[w] = Conjunction
	}

	for _, w := range []string{"i", "you", "he", "she", "it", "we", "they", "me", "him", "us", "them",
		"myself", "yourself", "himself", "herself", "itself", "ourselves", "themselves"} {
		t.lexicon[w] = Pronoun
	}

	for _, w := range []string{"who", "whom", "whose", "which", "that"} {
		t.lexicon[w] = RelativePronoun
	}

	for _, w := range []string{"old", "new", "good", "bad", "great", "small", "large", "big", "little",
		"young", "long", "short", "high", "low", "early", "late", "first", "last", "ancient", "dark",
		"bright", "powerful", "mighty", "wise", "evil", "grey", "black", "white", "red", "blue",
		"green", "golden", "silver"} {
		t.lexicon[w] = Adjective
	}

	for _, w := range []string{"very", "quite", "rather", "really", "too", "just", "only",
		"now", "then", "here", "there", "always", "never", "often", "sometimes", "slowly",
		"quickly", "suddenly", "finally", "already", "still", "even"} {
		t.lexicon[w] = Adverb
	}

	for _, w := range []string{"go", "went", "gone", "going", "come", "came", "coming",
		"say", "said", "saying", "see", "saw", "seen", "seeing", "know", "knew", "known", "knowing",
		"take", "took", "taken", "taking", "get", "got", "getting", "make", "made", "making",
		"walk", "walked", "walking", "run", "ran", "running", "live", "lived", "living", "lives",
		"speak", "spoke", "spoken", "speaking", "fight", "fought", "fighting", "kill", "killed",
		"killing", "love", "loved", "loving", "loves", "hate", "hated", "hating", "hates",
		"rule", "ruled", "ruling", "serve", "served", "serving", "attack", "work", "works", "worked", "working"} {
		t.lexicon[w] = Verb
	}

	for _, w := range []string{"wizard", "king", "queen", "knight", "dragon", "sword", "castle",
		"forest", "tower", "ring", "magic", "battle", "kingdom", "throne", "warrior", "mage",
		"elf", "dwarf", "orc", "goblin", "troll", "man", "woman", "child", "hero", "villain",
		"stranger", "lord", "lady"} {
		t.lexicon[w] = Noun
	}
}
