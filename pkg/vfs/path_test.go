package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		current string
		token   string
		want    string
	}{
		{"absolute replaces", "/a/b", "/x", "/x"},
		{"absolute trailing slash", "/a", "/x/y/", "/x/y"},
		{"absolute root", "/a", "/", "/"},
		{"parent", "/a/b", "..", "/a"},
		{"parent at root", "/", "..", "/"},
		{"parent with slash", "/a/b", "../", "/a"},
		{"dot", "/a", ".", "/a"},
		{"dot slash", "/a", "./", "/a"},
		{"empty", "/a", "", "/a"},
		{"relative from root", "/", "docs", "/docs"},
		{"relative", "/a", "docs", "/a/docs"},
		{"relative trailing slash", "/a", "docs/", "/a/docs"},
		{"relative multi segment", "/a", "b/c", "/a/b/c"},
		{"embedded parent cannot escape", "/a", "../../../etc", "/etc"},
		{"empty current", "", "docs", "/docs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.current, tt.token))
		})
	}
}

func TestResolveParentNeverAboveRoot(t *testing.T) {
	p := "/a/b/c/d"
	for range 10 {
		p = Resolve(p, "..")
		assert.NotEmpty(t, p)
		assert.Equal(t, byte('/'), p[0])
	}
	assert.Equal(t, "/", p)
}

func TestBackingPath(t *testing.T) {
	tests := []struct {
		home    string
		virtual string
		want    string
	}{
		{"/home/alice", "/", "/home/alice"},
		{"/home/alice", "/docs/a.txt", "/home/alice/docs/a.txt"},
		{"/home/alice", "/../bob", "/home/alice/bob"},
		{"/", "/docs", "/docs"},
		{"/", "/", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.home+tt.virtual, func(t *testing.T) {
			assert.Equal(t, tt.want, backingPath(tt.home, tt.virtual))
		})
	}
}

func TestVirtualPath(t *testing.T) {
	tests := []struct {
		home     string
		reported string
		want     string
	}{
		{"/home/alice", "hdfs://namenode:8020/home/alice/docs/a.txt", "/docs/a.txt"},
		{"/home/alice", "scheme://host/home/alice/docs/a.txt", "/docs/a.txt"},
		{"/home/alice", "/home/alice/x", "/x"},
		{"/home/alice", "mem:///home/alice", "/"},
		{"/", "mem:///docs", "/docs"},
	}

	for _, tt := range tests {
		t.Run(tt.reported, func(t *testing.T) {
			assert.Equal(t, tt.want, virtualPath(tt.home, tt.reported))
		})
	}
}
