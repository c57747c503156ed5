package common

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
)

func TestStringSet(t *testing.T) {
	ss := StringSet{}
	ss.Add("2")
	ss.Add("1")
	assert.T(t, ss.Contains("1"), "should contain")
	assert.T(t, ss.Contains("2"), "should contain")
	assert.Equal(t, []string{"1", "2"}, ss.ToList())
	ss.Remove("2")
	assert.T(t, !ss.Contains("2"), "should not contain")
}

func TestObjectIDSet(t *testing.T) {
	s := ObjectIDSet{}
	s.Add(7)
	s.Add(3)
	s.Add(5)
	assert.Equal(t, []ObjectID{3, 5, 7}, s.ToList())
	s.Del(5)
	assert.T(t, !s.Contains(5), "5 should be removed")
}

func TestClientObjectIDBase(t *testing.T) {
	p1 := GenPeerID()
	p2 := GenPeerID()
	assert.NotEqual(t, p1, p2)
	base := ClientObjectIDBase(p1)
	assert.T(t, base > 0xFFFFFFFF, "client ids must not overlap server ids")
	assert.Equal(t, base, ClientObjectIDBase(p1))
}

func TestIsError(t *testing.T) {
	err := errors.Wrapf(ErrDuplicateName, "object %s", "Player1")
	assert.T(t, IsError(err, ErrDuplicateName), "wrapped error should match")
	assert.T(t, !IsError(err, ErrNotFound), "should not match other errors")
	assert.T(t, !IsError(nil, ErrNotFound), "nil never matches")
}
