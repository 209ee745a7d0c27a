package storage

import (
	"regexp"
	"strconv"
	"strings"
)

// ShareSuffix terminates every canonical document key.
const ShareSuffix = ".share"

var (
	archiveRe      = regexp.MustCompile(`\.([0-9]+)\.archive$`)
	versionTokenRe = regexp.MustCompile(`\.share\.[0-9]+\.archive$`)
)

// ObjectKey derives the storage key for a document. The docid is used as is
// when it already names a canonical share or an archived version.
func ObjectKey(root, identity, docid string) string {
	return FolderKey(root, identity) + "/" + canonicalName(docid)
}

// canonicalName is the object name a docid addresses inside its folder.
// Distinct docids with the same canonical name address the same object.
func canonicalName(docid string) string {
	if strings.HasSuffix(docid, ShareSuffix) || IsVersionToken(docid) {
		return docid
	}
	return docid + ShareSuffix
}

// FolderKey is the folder holding every document of identity.
func FolderKey(root, identity string) string {
	return root + "/" + identity
}

// ArchiveKey names the archived copy of key taken at unixSeconds.
func ArchiveKey(key string, unixSeconds int64) string {
	return key + "." + strconv.FormatInt(unixSeconds, 10) + ".archive"
}

// IsArchiveKey reports whether key names an archived version.
func IsArchiveKey(key string) bool {
	return archiveRe.MatchString(key)
}

// IsVersionToken reports whether docid names an archived share version.
func IsVersionToken(docid string) bool {
	return versionTokenRe.MatchString(docid)
}

// archiveTimestamp returns the timestamp of name when it is an archive of
// base, i.e. exactly base + ".<digits>.archive".
func archiveTimestamp(base, name string) (int64, bool) {
	rest, ok := strings.CutPrefix(name, base)
	if !ok {
		return 0, false
	}
	m := archiveRe.FindStringSubmatch(rest)
	if m == nil || len(m[0]) != len(rest) {
		return 0, false
	}
	ts, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}

// VersionToken maps a key inside folder back to the token a client uses to
// address it. The canonical suffix is dropped only when the shorter token
// still addresses the same object; archive names are kept whole.
func VersionToken(folder, key string) string {
	rel := strings.TrimPrefix(key, folder+"/")
	if IsArchiveKey(rel) {
		return rel
	}
	if short := strings.TrimSuffix(rel, ShareSuffix); canonicalName(short) == rel {
		return short
	}
	return rel
}

// TokenMatches reports whether a requested docid addresses the document whose
// stored docid is stored: either the same object, or one of its archived
// versions. "doc" and "doc.share" address the same object.
func TokenMatches(stored, requested string) bool {
	canonical := canonicalName(stored)
	if canonicalName(requested) == canonical {
		return true
	}
	if !IsVersionToken(requested) {
		return false
	}
	_, ok := archiveTimestamp(canonical, requested)
	return ok
}

func splitKey(key string) (folder, name string) {
	i := strings.LastIndex(key, "/")
	if i < 0 {
		return "", key
	}
	return key[:i], key[i+1:]
}

func joinKey(folder, name string) string {
	if folder == "" {
		return name
	}
	return folder + "/" + name
}
