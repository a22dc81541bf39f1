// Package origin identifies HTTP origins and groups them for redirect coalescing.
package origin

import "net/url"

// Key identifies an HTTP origin as scheme://host:port with default ports
// filled in, so that equivalent URLs compare equal.
type Key string

// FromURL returns the origin Key of u.
func FromURL(u *url.URL) Key {
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "http":
			port = "80"
		case "https":
			port = "443"
		}
	}
	return Key(u.Scheme + "://" + u.Hostname() + ":" + port)
}

// Set is a disjoint-set over origin keys. Origins that serve files of the
// same torrent after redirects are united so their fetches share a connection.
type Set struct {
	parent map[Key]Key
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{parent: make(map[Key]Key)}
}

// Find returns the representative key of k's group.
func (s *Set) Find(k Key) Key {
	p, ok := s.parent[k]
	if !ok {
		s.parent[k] = k
		return k
	}
	if p == k {
		return k
	}
	root := s.Find(p)
	s.parent[k] = root
	return root
}

// Union joins the groups of a and b.
func (s *Set) Union(a, b Key) {
	ra := s.Find(a)
	rb := s.Find(b)
	if ra != rb {
		s.parent[rb] = ra
	}
}

// Same returns true if a and b are in the same group.
func (s *Set) Same(a, b Key) bool {
	return s.Find(a) == s.Find(b)
}
