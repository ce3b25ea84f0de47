package extract

import "testing"

func TestTaggerBaselineLexicon(t *testing.T) {
	tagger := NewTagger()
	tags := tagger.Tag([]string{"The", "wizard", "will", "attack", "quickly"})
	want := []POS{Determiner, Noun, Modal, Verb, Adverb}
	for i, w := range want {
		if tags[i] != w {
			t.Fatalf("tag %d: got %v, want %v (tags=%v)", i, tags[i], w, tags)
		}
	}
}

func TestTaggerDeterminerForcesNoun(t *testing.T) {
	tagger := NewTagger()
	tags := tagger.Tag([]string{"the", "run"})
	if tags[1] != Noun {
		t.Fatalf("expected 'run' after determiner tagged Noun, got %v", tags[1])
	}
}

func TestTaggerModalForcesVerb(t *testing.T) {
	tagger := NewTagger()
	tags := tagger.Tag([]string{"will", "Kaido"})
	if tags[1] != Verb {
		t.Fatalf("expected nominal-looking word after modal tagged Verb, got %v", tags[1])
	}
}

func TestTaggerProperNounInference(t *testing.T) {
	tagger := NewTagger()
	tags := tagger.Tag([]string{"Luffy", "fought", "Kaido"})
	if tags[0] != ProperNoun || tags[2] != ProperNoun {
		t.Fatalf("expected capitalized unknown words tagged ProperNoun, got %v", tags)
	}
}
