package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectKey(t *testing.T) {
	tests := []struct {
		name     string
		identity string
		docid    string
		want     string
	}{
		{name: "plain docid", identity: "ADDR", docid: "docId2", want: "data/ADDR/docId2.share"},
		{name: "already canonical", identity: "ADDR", docid: "docId2.share", want: "data/ADDR/docId2.share"},
		{name: "version token", identity: "ADDR", docid: "docId2.share.1741519100.archive", want: "data/ADDR/docId2.share.1741519100.archive"},
		{name: "archive without share", identity: "ADDR", docid: "docId2.1741519100.archive", want: "data/ADDR/docId2.1741519100.archive.share"},
		{name: "share in the middle", identity: "ADDR", docid: "a.share.b", want: "data/ADDR/a.share.b.share"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ObjectKey("data", tt.identity, tt.docid))
		})
	}
}

func TestArchiveKey(t *testing.T) {
	assert.Equal(t, "data/A/d.share.1741519100.archive", ArchiveKey("data/A/d.share", 1741519100))
	assert.True(t, IsArchiveKey(ArchiveKey("x", 1)))
	assert.False(t, IsArchiveKey("data/A/d.share"))
	assert.False(t, IsArchiveKey("d.share.abc.archive"))
}

func TestVersionToken(t *testing.T) {
	folder := "data/ADDR"
	assert.Equal(t, "docId2", VersionToken(folder, "data/ADDR/docId2.share"))
	assert.Equal(t, "docId2.share.1741519100.archive", VersionToken(folder, "data/ADDR/docId2.share.1741519100.archive"))
	assert.Equal(t, "plain", VersionToken(folder, "data/ADDR/plain"))
	assert.Equal(t, "doc.share.share", VersionToken(folder, "data/ADDR/doc.share.share"),
		"stripping would address data/ADDR/doc.share instead")
}

func TestVersionTokenRoundTrips(t *testing.T) {
	folder := "data/ADDR"
	for _, docid := range []string{"doc", "doc.share", "doc.share.share", "a.share.b", "docId2.1741519100.archive", "a.share.5.archive.share"} {
		key := ObjectKey("data", "ADDR", docid)
		token := VersionToken(folder, key)
		assert.Equal(t, key, ObjectKey("data", "ADDR", token), "docid %q lists as %q", docid, token)
		assert.True(t, TokenMatches(docid, token), "docid %q must accept its own token %q", docid, token)

		archived := VersionToken(folder, ArchiveKey(key, 1741519100))
		assert.True(t, TokenMatches(docid, archived), "docid %q must accept archive token %q", docid, archived)
	}
}

func TestTokenMatches(t *testing.T) {
	tests := []struct {
		name      string
		stored    string
		requested string
		want      bool
	}{
		{name: "exact", stored: "docId2", requested: "docId2", want: true},
		{name: "different", stored: "docId2", requested: "docId3", want: false},
		{name: "version of stored", stored: "docId2", requested: "docId2.share.1741519100.archive", want: true},
		{name: "version of canonical stored", stored: "docId2.share", requested: "docId2.share.1741519100.archive", want: true},
		{name: "version of another doc", stored: "docId", requested: "docId2.share.1741519100.archive", want: false},
		{name: "canonical suffix requested", stored: "docId2", requested: "docId2.share", want: true},
		{name: "canonical suffix stored", stored: "doc.share", requested: "doc", want: true},
		{name: "version of suffixed stored", stored: "doc.share", requested: "doc.share.1741519100.archive", want: true},
		{name: "double suffix is another object", stored: "doc.share.share", requested: "doc.share", want: false},
		{name: "double suffix exact", stored: "doc.share.share", requested: "doc.share.share", want: true},
		{name: "nested archive", stored: "docId2", requested: "docId2.share.1.share.2.archive", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TokenMatches(tt.stored, tt.requested))
		})
	}
}

func TestArchiveTimestamp(t *testing.T) {
	ts, ok := archiveTimestamp("d.share", "d.share.42.archive")
	assert.True(t, ok)
	assert.Equal(t, int64(42), ts)

	_, ok = archiveTimestamp("d.share", "d.share2.42.archive")
	assert.False(t, ok)
	_, ok = archiveTimestamp("d.share", "d.share")
	assert.False(t, ok)
	_, ok = archiveTimestamp("d.share", "d.share.1.2.archive")
	assert.False(t, ok)
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `a\*b\?c\[d\]\{e\}\\`, escapeGlob(`a*b?c[d]{e}\`))
	assert.Equal(t, ".share", escapeGlob(".share"))
}
