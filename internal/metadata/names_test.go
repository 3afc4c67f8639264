package metadata

import "testing"

func TestSingularize(t *testing.T) {
	cases := map[string]string{
		"users":      "user",
		"categories": "category",
		"boxes":      "box",
		"statuses":   "status",
		"people":     "person",
		"children":   "child",
		"address":    "address",
		"analysis":   "analysis",
		"user":       "user",
	}
	for in, want := range cases {
		if got := Singularize(in); got != want {
			t.Errorf("Singularize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPluralize(t *testing.T) {
	cases := map[string]string{
		"user":     "users",
		"category": "categories",
		"box":      "boxes",
		"status":   "statuses",
		"person":   "people",
		"child":    "children",
		"day":      "days",
	}
	for in, want := range cases {
		if got := Pluralize(in); got != want {
			t.Errorf("Pluralize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUnderscore(t *testing.T) {
	cases := map[string]string{
		"BlogPost":   "blog_post",
		"blogPost":   "blog_post",
		"blog-post":  "blog_post",
		"blog_post":  "blog_post",
		"USERS":      "users",
		"HTMLPage":   "htmlpage",
		"Blog Posts": "blog_posts",
	}
	for in, want := range cases {
		if got := Underscore(in); got != want {
			t.Errorf("Underscore(%q) = %q, want %q", in, got, want)
		}
	}
}
