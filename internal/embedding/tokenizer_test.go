package embedding

import (
	"reflect"
	"testing"
)

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, mask := tok.Tokenize("A dog, running", 10)
	if len(ids) != 10 || len(mask) != 10 {
		t.Fatalf("lengths: ids=%d mask=%d", len(ids), len(mask))
	}
	if ids[0] != clipStartToken {
		t.Errorf("first token = %d, want start token", ids[0])
	}
	// a, dog, ",", running
	if ids[5] != clipEndToken {
		t.Errorf("token 5 = %d, want end token", ids[5])
	}
	for i := 0; i < 6; i++ {
		if mask[i] != 1 {
			t.Errorf("mask[%d] = %d, want 1", i, mask[i])
		}
	}
	for i := 6; i < 10; i++ {
		if ids[i] != 0 || mask[i] != 0 {
			t.Errorf("padding at %d: id=%d mask=%d", i, ids[i], mask[i])
		}
	}
	for i := 1; i < 5; i++ {
		if ids[i] < clipFirstWordToken || ids[i] >= clipStartToken {
			t.Errorf("word token %d out of range: %d", i, ids[i])
		}
	}
}

func TestSimpleTokenizer_CaseInsensitive(t *testing.T) {
	tok := &SimpleTokenizer{}
	a, _ := tok.Tokenize("Red Car", 0)
	b, _ := tok.Tokenize("red car", 0)
	if !reflect.DeepEqual(a, b) {
		t.Error("tokenization should ignore case")
	}
	if len(a) != clipContextLength {
		t.Errorf("default length = %d, want %d", len(a), clipContextLength)
	}
}

func TestSimpleTokenizer_Truncates(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, _ := tok.Tokenize("one two three four five six", 4)
	if ids[3] != clipEndToken {
		t.Errorf("truncated sequence must end with the end token, got %v", ids)
	}
}

func TestSplitWords(t *testing.T) {
	got := SplitWords("a  photo\tof a cat's toy!")
	want := []string{"a", "photo", "of", "a", "cat's", "toy", "!"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitWords = %q, want %q", got, want)
	}
}
