package category

import "testing"

func TestMatches(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		item      string
		requested []string
		want      bool
	}{
		{name: "empty set matches anything", item: "ooc", requested: nil, want: true},
		{name: "empty set matches uncategorized", item: "", requested: nil, want: true},
		{name: "all sentinel", item: "ooc", requested: []string{"all"}, want: true},
		{name: "all sentinel uppercase", item: "ooc", requested: []string{"ALL"}, want: true},
		{name: "none matches uncategorized", item: "", requested: []string{"none"}, want: true},
		{name: "unset matches uncategorized", item: "", requested: []string{"unset"}, want: true},
		{name: "none rejects categorized", item: "ooc", requested: []string{"none"}, want: false},
		{name: "exact match", item: "ooc", requested: []string{"ooc"}, want: true},
		{name: "case-insensitive match", item: "OOC", requested: []string{"ooc"}, want: true},
		{name: "mismatch", item: "ooc", requested: []string{"ic"}, want: false},
		{name: "membership across set", item: "ooc", requested: []string{"ic", "ooc"}, want: true},
		{name: "bare name does not match todo category", item: "!ooc", requested: []string{"ooc"}, want: false},
		{name: "todo marker matches todo category", item: "!ooc", requested: []string{"!ooc"}, want: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Matches(tt.item, tt.requested); got != tt.want {
				t.Fatalf("Matches(%q, %v) = %v, want %v", tt.item, tt.requested, got, tt.want)
			}
		})
	}
}

func TestTodoMarkerHelpers(t *testing.T) {
	t.Parallel()
	if !IsTodo("!errands") {
		t.Fatal("IsTodo should detect the marker")
	}
	if IsTodo("errands") {
		t.Fatal("IsTodo should reject bare categories")
	}
	if got := TrimTodoMarker("!errands"); got != "errands" {
		t.Fatalf("TrimTodoMarker = %q", got)
	}
}

func TestSplitJoinSet(t *testing.T) {
	t.Parallel()
	if got := SplitSet(""); got != nil {
		t.Fatalf("SplitSet(\"\") = %v, want nil", got)
	}
	set := SplitSet("  ic ooc  ")
	if len(set) != 2 || set[0] != "ic" || set[1] != "ooc" {
		t.Fatalf("SplitSet = %v", set)
	}
	if got := JoinSet(set); got != "ic ooc" {
		t.Fatalf("JoinSet = %q", got)
	}
}
