package vfs

import "teachfs/defs"

/// PathContext supplies the two things path resolution needs beyond
/// the name string itself: the mounted root and the caller's current
/// directory. The original kernel reaches these through a global
/// process table (out of scope per this module's narrow contract);
/// here they are passed explicitly.
type PathContext struct {
	Itable *ITable
	Dtable *DTable
	Root   *Inode
	Cwd    *Inode
}

/// SkipElem copies the next path component of path into name and
/// returns the remainder of path after it (and any trailing
/// slashes), or ("", nil) when no element remains.
///
/// Matches the on-disk directory-entry convention exactly: if the
/// element is DIRSIZ bytes or longer, name is filled with the first
/// DIRSIZ bytes and left un-terminated (no trailing NUL) rather than
/// truncated-with-terminator — fixed-width on-disk names are never
/// NUL terminated, so a name copied in from a too-long path component
/// must compare equal to them byte-for-byte.
func SkipElem(path string) (rest string, name []byte, ok bool) {
	i := 0
	for i < len(path) && path[i] == '/' {
		i++
	}
	if i == len(path) {
		return "", nil, false
	}
	start := i
	for i < len(path) && path[i] != '/' {
		i++
	}
	elem := path[start:i]

	buf := make([]byte, DIRSIZ)
	n := len(elem)
	if n >= DIRSIZ {
		copy(buf, elem[:DIRSIZ])
	} else {
		copy(buf, elem)
		// remaining bytes are already zero: the Go zero value.
	}

	for i < len(path) && path[i] == '/' {
		i++
	}
	return path[i:], buf, true
}

/// Namex is the shared engine behind Namei and NameiParent: walk path
/// component by component starting from the root (absolute paths) or
/// pc.Cwd (relative paths), stopping one element early when
/// wantParent is true. lastName receives the final, unresolved
/// component when wantParent is true.
func Namex(pc *PathContext, path string, wantParent bool) (ip *Inode, lastName []byte) {
	var cur *Inode
	if len(path) > 0 && path[0] == '/' {
		cur = pc.Itable.Iget(pc.Root.Dev, pc.Root.Inum)
	} else {
		cur = pc.Itable.Idup(pc.Cwd)
	}

	rest := path
	for {
		r, name, ok := SkipElem(rest)
		if !ok {
			break
		}
		rest = r

		pc.Itable.Ilock(cur)
		if cur.Type != defs.T_DIR {
			pc.Itable.IunlockPut(cur)
			return nil, nil
		}
		if wantParent && rest == "" {
			pc.Itable.Iunlock(cur)
			return cur, name
		}
		d, err := cur.Op.DirLookup(cur, name)
		if err != 0 || d == nil || d.Inode == nil {
			pc.Itable.IunlockPut(cur)
			return nil, nil
		}
		pc.Itable.IunlockPut(cur)
		cur = d.Inode
		pc.Dtable.Dfree(d)
	}

	if wantParent {
		pc.Itable.Iput(cur)
		return nil, nil
	}
	return cur, nil
}

/// Namei resolves path to its inode.
func Namei(pc *PathContext, path string) *Inode {
	ip, _ := Namex(pc, path, false)
	return ip
}

/// NameiParent resolves path's parent directory, returning the
/// parent inode and the final path component (not yet looked up).
func NameiParent(pc *PathContext, path string) (parent *Inode, name []byte) {
	return Namex(pc, path, true)
}
