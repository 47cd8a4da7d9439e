package app

import (
	"reflect"
	"testing"
)

func TestParseArgs(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want []string
	}{
		{in: "", want: nil},
		{in: "   ", want: nil},
		{in: "!digest", want: []string{"!digest"}},
		{in: "/enable  stats   weekly friday 16:00", want: []string{"/enable", "stats", "weekly", "friday", "16:00"}},
		{in: `/set_query "project: WEB" #Unresolved`, want: []string{"/set_query", "project: WEB", "#Unresolved"}},
		{in: `/stats "2023-09-12 .. 2023-09-14"`, want: []string{"/stats", "2023-09-12 .. 2023-09-14"}},
		{in: `a "b  c" d`, want: []string{"a", "b  c", "d"}},
		{in: `/stats "abc def`, want: []string{"/stats"}},
		{in: `"open`, want: nil},
	}
	for _, tt := range tests {
		if got := ParseArgs(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("ParseArgs(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
