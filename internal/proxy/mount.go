// Package proxy forwards requests under a mount prefix to an upstream
// service and relays the response back unchanged.
package proxy

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/jalsakhi/model-gateway/internal/config"
)

// Mount maps a path prefix to an upstream base URL.
type Mount struct {
	Name     string
	Prefix   string
	Label    string
	Upstream *url.URL
}

// Table is the immutable set of mounts, consulted longest prefix first.
type Table struct {
	mounts []*Mount
}

// NewTable parses the mount configuration.
func NewTable(cfgs []config.MountConfig) (*Table, error) {
	t := &Table{mounts: make([]*Mount, 0, len(cfgs))}
	for _, c := range cfgs {
		u, err := url.Parse(c.Upstream)
		if err != nil {
			return nil, fmt.Errorf("mount %q: invalid upstream: %w", c.Name, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("mount %q: upstream must be an absolute http(s) URL", c.Name)
		}
		u.Path = strings.TrimSuffix(u.Path, "/")
		u.RawPath = strings.TrimSuffix(u.RawPath, "/")
		t.mounts = append(t.mounts, &Mount{
			Name:     c.Name,
			Prefix:   strings.TrimSuffix(c.Prefix, "/"),
			Label:    c.Label,
			Upstream: u,
		})
	}
	sort.SliceStable(t.mounts, func(i, j int) bool {
		return len(t.mounts[i].Prefix) > len(t.mounts[j].Prefix)
	})
	return t, nil
}

// Lookup returns the mount whose prefix equals path or is followed by "/".
func (t *Table) Lookup(path string) (*Mount, bool) {
	for _, m := range t.mounts {
		if path == m.Prefix || strings.HasPrefix(path, m.Prefix+"/") {
			return m, true
		}
	}
	return nil, false
}

// Mounts returns the mounts in lookup order.
func (t *Table) Mounts() []*Mount {
	out := make([]*Mount, len(t.mounts))
	copy(out, t.mounts)
	return out
}

// UpstreamURL is the upstream target for an inbound URL under the mount.
// The prefix is stripped from the path as received, so empty segments, dot
// segments and escapes such as %2F reach the upstream untouched. The query
// is kept.
func (m *Mount) UpstreamURL(in *url.URL) *url.URL {
	rest := strings.TrimPrefix(in.Path, m.Prefix)
	rawRest := (&url.URL{Path: rest}).EscapedPath()
	if escaped := in.EscapedPath(); escaped == m.Prefix || strings.HasPrefix(escaped, m.Prefix+"/") {
		rawRest = strings.TrimPrefix(escaped, m.Prefix)
	}
	if rest == "" {
		rest, rawRest = "/", "/"
	}

	target := *m.Upstream
	target.Path = m.Upstream.Path + rest
	target.RawPath = m.Upstream.EscapedPath() + rawRest
	target.RawQuery = in.RawQuery
	return &target
}
