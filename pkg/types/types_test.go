package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileLocationEqualityIsStructural(t *testing.T) {
	f := File{ID: "data", Size: 100}
	a := FileLocation{Service: "st", Mount: "/", Path: "/", File: f}
	b := FileLocation{Service: "st", Mount: "/", Path: "/", File: f}
	c := FileLocation{Service: "st", Mount: "/", Path: "/other", File: f}
	assert.True(t, a == b)
	assert.False(t, a == c)

	seen := map[FileLocation]bool{a: true}
	assert.True(t, seen[b])
}

func TestLocationResolve(t *testing.T) {
	f := File{ID: "data", Size: 100}
	plain := FileLocation{Service: "st", Mount: "/", Path: "/", File: f}
	svc, target := plain.Resolve()
	assert.Equal(t, "st", svc)
	assert.Equal(t, plain, target)

	proxied := ProxyLocation{Proxy: "proxy", Target: plain}
	svc, target = proxied.Resolve()
	assert.Equal(t, "proxy", svc)
	assert.Equal(t, plain, target)
}

func TestJobTaskByID(t *testing.T) {
	t1 := &Task{ID: "t1"}
	t2 := &Task{ID: "t2"}
	job := &StandardJob{ID: "j", Tasks: []*Task{t1, t2}}
	assert.Equal(t, t2, job.TaskByID("t2"))
	assert.Nil(t, job.TaskByID("t3"))
}
