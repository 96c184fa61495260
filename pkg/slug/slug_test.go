package slug

import "testing"

func TestMake(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "João Silva 123!", want: "joao-silva-123"},
		{in: "  Ação   Criativa  ", want: "acao-criativa"},
		{in: "already-a-slug", want: "already-a-slug"},
		{in: "Under_Score__Name", want: "under-score-name"},
		{in: "Çedilha & Ümlaut", want: "cedilha-umlaut"},
		{in: "!!!", want: ""},
		{in: "", want: ""},
		{in: "emoji 🎉 name", want: "emoji-name"},
	}
	for _, tt := range tests {
		if got := Make(tt.in); got != tt.want {
			t.Fatalf("Make(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
