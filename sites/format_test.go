package sites

import (
	"testing"

	"github.com/tracuuvn/tracuu/types"
)

func TestSplitPlate(t *testing.T) {
	tests := []struct {
		name, plate, prefix, suffix string
	}{
		{"dash", "30A-12345", "30A", "12345"},
		{"space", "59 X1 123.45", "59", "X1123.45"},
		{"no separator", "30A", "30A", ""},
		{"lowercase trimmed", " 51f-678.90 ", "51F", "678.90"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefix, suffix := splitPlate(tt.plate)
			if prefix != tt.prefix || suffix != tt.suffix {
				t.Fatalf("splitPlate(%q) = %q, %q; want %q, %q", tt.plate, prefix, suffix, tt.prefix, tt.suffix)
			}
		})
	}
}

func TestPercentGroups(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"AB 123", "%AB%123%"},
		{"ab123", "%AB%123%"},
		{"30A", "%30%A%"},
		{"--", "%--%"},
		{"CT 01234", "%CT%01234%"},
	}
	for _, tt := range tests {
		if got := percentGroups(tt.in); got != tt.want {
			t.Errorf("percentGroups(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPlatePatternP2(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"12345", "%123%45%"},
		{"123.45", "%123%45%"},
		{"123", "%123%"},
		{"", "%"},
		{"1.2.3", "%1%2%3%"},
	}
	for _, tt := range tests {
		if got := platePatternP2(tt.in); got != tt.want {
			t.Errorf("platePatternP2(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPlatePattern(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"30A-12345", "%30%A%123%45%"},
		{"30a 123.45", "%30%A%123%45%"},
		{"30A", "%30%A%"},
		{"", "%"},
	}
	for _, tt := range tests {
		if got := platePattern(tt.in); got != tt.want {
			t.Errorf("platePattern(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTableRadio(t *testing.T) {
	tests := []struct {
		kind types.Kind
		want string
	}{
		{types.KindPlate, dsncRadioVehicles},
		{types.KindPerson, dsncRadioPersons},
		{types.KindTitle, ""},
	}
	for _, tt := range tests {
		if got := tableRadio(tt.kind); got != tt.want {
			t.Errorf("tableRadio(%q) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestMenuPath(t *testing.T) {
	tests := []struct {
		kind types.Kind
		last string
	}{
		{types.KindPlate, cenmMenuAssets},
		{types.KindTitle, cenmMenuAssets},
		{types.KindPerson, cenmMenuPersons},
	}
	for _, tt := range tests {
		path := menuPath(tt.kind)
		if len(path) != 2 || path[0] != cenmMenuLookup || path[1] != tt.last {
			t.Errorf("menuPath(%q) = %v, want [%s %s]", tt.kind, path, cenmMenuLookup, tt.last)
		}
	}
}

func TestNormalizeSerial(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{" ct 01234 ", "CT01234"},
		{"CT\t012 34", "CT01234"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeSerial(tt.in); got != tt.want {
			t.Errorf("normalizeSerial(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
