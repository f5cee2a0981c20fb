package scan

// DirCache is the opt-in directory-mtime short-circuit. A directory
// whose own mtime matches the cached value from the previous complete
// run may have its subtree skipped, provided no ancestor's mtime
// changed this run. It is an acceleration only: directory mtimes do not
// reflect file content edits, which is why it sits behind a flag and is
// bypassed entirely under full rehash.
type DirCache struct {
	prior   map[string]int64
	fresh   map[string]int64
	changed map[string]bool
}

// NewDirCache seeds the cache from a previous checkpoint's entries
// (may be nil).
func NewDirCache(prior map[string]int64) *DirCache {
	return &DirCache{
		prior:   prior,
		fresh:   make(map[string]int64),
		changed: make(map[string]bool),
	}
}

// Visit records a directory's current mtime and reports whether its
// subtree can be skipped. parent is the scope-relative parent path (""
// for the root).
func (c *DirCache) Visit(path, parent string, mtime int64) (skip bool) {
	c.fresh[path] = mtime

	prior, known := c.prior[path]
	dirChanged := !known || prior != mtime
	c.changed[path] = dirChanged || c.changed[parent]

	return !c.changed[path]
}

// Snapshot returns the mtimes observed this run, merged over entries
// from skipped subtrees so they survive into the next checkpoint.
func (c *DirCache) Snapshot() map[string]int64 {
	out := make(map[string]int64, len(c.fresh))
	for path, mtime := range c.prior {
		out[path] = mtime
	}
	for path, mtime := range c.fresh {
		out[path] = mtime
	}
	return out
}
