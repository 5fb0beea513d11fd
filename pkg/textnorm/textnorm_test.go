package textnorm

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "empty input",
			text: "",
			want: "",
		},
		{
			name: "accent folding",
			text: "Taquería",
			want: "taqueria",
		},
		{
			name: "punctuation stripped",
			text: "Best tacos, ever!",
			want: "best tacos ever",
		},
		{
			name: "whitespace collapsed",
			text: "  carne \t asada \n burrito ",
			want: "carne asada burrito",
		},
		{
			name: "symbols only",
			text: "!!! *** ---",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.text)
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestSingularize(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{token: "tacos", want: "taco"},
		{token: "berries", want: "berry"},
		{token: "dishes", want: "dish"},
		{token: "glass", want: "glass"},
		{token: "gas", want: "gas"},
		{token: "taco", want: "taco"},
		{token: "abc", want: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got := Singularize(tt.token)
			if got != tt.want {
				t.Errorf("Singularize(%q) = %q, want %q", tt.token, got, tt.want)
			}
		})
	}
}

func TestTokensWithSingulars(t *testing.T) {
	got := TokensWithSingulars("fish tacos")
	want := []string{"fish", "tacos", "taco"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("TokensWithSingulars() = %v, want %v", got, want)
	}
}

func TestNGrams(t *testing.T) {
	tests := []struct {
		name   string
		tokens []string
		minN   int
		maxN   int
		want   []string
	}{
		{
			name:   "no tokens",
			tokens: nil,
			minN:   1,
			maxN:   4,
			want:   nil,
		},
		{
			name:   "width capped at token count",
			tokens: []string{"carne", "asada"},
			minN:   1,
			maxN:   4,
			want:   []string{"carne", "asada", "carne asada"},
		},
		{
			name:   "three tokens full expansion",
			tokens: []string{"al", "pastor", "taco"},
			minN:   1,
			maxN:   4,
			want: []string{
				"al", "pastor", "taco",
				"al pastor", "pastor taco",
				"al pastor taco",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NGrams(tt.tokens, tt.minN, tt.maxN)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NGrams() = %v, want %v", got, tt.want)
			}
		})
	}
}
