package articles

import "testing"

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Hello World", "hello-world"},
		{"  Breaking: Mayor Resigns!  ", "breaking-mayor-resigns"},
		{"Déjà Vu à Paris", "deja-vu-a-paris"},
		{"CAPS and 123 numbers", "caps-and-123-numbers"},
		{"multiple---separators___here", "multiple-separators-here"},
		{"", "untitled"},
		{"!!!", "untitled"},
	}
	for _, tc := range cases {
		if got := Slugify(tc.in); got != tc.want {
			t.Errorf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSlugifyTruncates(t *testing.T) {
	long := ""
	for i := 0; i < 30; i++ {
		long += "verylongword "
	}
	slug := Slugify(long)
	if len(slug) > maxSlugLen {
		t.Fatalf("slug length %d exceeds %d", len(slug), maxSlugLen)
	}
	if slug[len(slug)-1] == '-' {
		t.Fatalf("slug ends with hyphen: %q", slug)
	}
}
