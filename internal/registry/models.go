package registry

// Result is one search hit. ID is a local rendering key, unique within a
// single response and never stable across searches.
type Result struct {
	ID   string
	Name string
	URL  string
}

// Package is the subset of /api/packages/<name> used by the details pane.
type Package struct {
	Name   string  `json:"name"`
	Latest Version `json:"latest"`
}

type Version struct {
	Version   string  `json:"version"`
	Published string  `json:"published"`
	Pubspec   Pubspec `json:"pubspec"`
}

type Pubspec struct {
	Description   string `json:"description"`
	Homepage      string `json:"homepage"`
	Repository    string `json:"repository"`
	Documentation string `json:"documentation"`
}
