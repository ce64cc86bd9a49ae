package textutil

import (
	"reflect"
	"testing"
)

func TestFold(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Amélie", "amelie"},
		{"STRASSE", "strasse"},
		{"Crème Brûlée", "creme brulee"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Fold(tt.in); got != tt.want {
			t.Errorf("Fold(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWords(t *testing.T) {
	got := Words("I can't give up -- The Shawshank Redemption (1994)!")
	want := []string{"i", "cant", "give", "up", "the", "shawshank", "redemption", "1994"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Words() = %v, want %v", got, want)
	}
}

func TestStem(t *testing.T) {
	tests := map[string]string{
		"stories":  "story",
		"running":  "run",
		"looked":   "look",
		"stopped":  "stop",
		"boxes":    "box",
		"glass":    "glass",
		"agreed":   "agreed",
		"falling":  "fall",
		"cats":     "cat",
		"the":      "the",
		"redeemed": "redeem",
	}
	for in, want := range tests {
		if got := Stem(in); got != want {
			t.Errorf("Stem(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestContentWords(t *testing.T) {
	got := ContentWords("The Lord of the Rings")
	want := []string{"lord", "ring"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ContentWords() = %v, want %v", got, want)
	}
}
