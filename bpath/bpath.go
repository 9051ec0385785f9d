// Package bpath canonicalizes filesystem paths. It backs
// fd.Cwd_t.Canonicalpath, which the VFS uses before handing a path to
// Resolve so that mount-point matching and ext2 lookups never have to
// special-case "." / ".." / duplicate slashes.
package bpath

import "ustr"

/// Canonicalize rewrites p into an absolute, slash-collapsed path with
/// every "." component removed and every ".." component resolved
/// against its preceding component. p must already be absolute (the
/// caller, fd.Cwd_t.Fullpath, guarantees this by prefixing a relative
/// path with the current working directory first).
func Canonicalize(p ustr.Ustr) ustr.Ustr {
	comps := split(p)
	out := make([]ustr.Ustr, 0, len(comps))
	for _, c := range comps {
		switch {
		case len(c) == 0:
			continue
		case c.Isdot():
			continue
		case c.Isdotdot():
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, c)
		}
	}
	return join(out)
}

func split(p ustr.Ustr) []ustr.Ustr {
	var comps []ustr.Ustr
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				comps = append(comps, p[start:i])
			}
			start = i + 1
		}
	}
	return comps
}

func join(comps []ustr.Ustr) ustr.Ustr {
	if len(comps) == 0 {
		return ustr.MkUstrRoot()
	}
	ret := ustr.Ustr{'/'}
	for i, c := range comps {
		if i > 0 {
			ret = append(ret, '/')
		}
		ret = append(ret, c...)
	}
	return ret
}
