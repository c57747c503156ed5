package propsync

import (
	"testing"

	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/reflection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack"
)

type rigidBody struct {
	Position common.Vector3
	Mass     float32
	Sleeping bool
	Owner    string
	Layer    int64
	Note     string
}

func rigidBodyDesc(t *testing.T) *reflection.TypeDesc {
	r := reflection.NewRegistry()
	td, err := r.Register("RigidBody",
		reflection.NewProperty("Position", reflection.KindVector,
			func(o interface{}) interface{} { return o.(*rigidBody).Position },
			func(o interface{}, v interface{}) { o.(*rigidBody).Position = v.(common.Vector3) },
		).MarkSynced(),
		reflection.NewProperty("Mass", reflection.KindFloat,
			func(o interface{}) interface{} { return o.(*rigidBody).Mass },
			func(o interface{}, v interface{}) { o.(*rigidBody).Mass = v.(float32) },
		).MarkSynced(),
		reflection.NewProperty("Sleeping", reflection.KindBool,
			func(o interface{}) interface{} { return o.(*rigidBody).Sleeping },
			func(o interface{}, v interface{}) { o.(*rigidBody).Sleeping = v.(bool) },
		).MarkSynced(),
		reflection.NewProperty("Owner", reflection.KindString,
			func(o interface{}) interface{} { return o.(*rigidBody).Owner },
			nil,
		).MarkSynced(),
		reflection.NewProperty("Layer", reflection.KindEnum,
			func(o interface{}) interface{} { return o.(*rigidBody).Layer },
			func(o interface{}, v interface{}) { o.(*rigidBody).Layer = v.(int64) },
		).MarkSynced().WithEnum("default", "water", "ui"),
		reflection.NewProperty("Note", reflection.KindString,
			func(o interface{}) interface{} { return o.(*rigidBody).Note },
			func(o interface{}, v interface{}) { o.(*rigidBody).Note = v.(string) },
		),
	)
	require.NoError(t, err)
	return td
}

func mustEncode(t *testing.T, v interface{}) []byte {
	data, err := msgpack.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestSetOnlyTracksSyncedProperties(t *testing.T) {
	td := rigidBodyDesc(t)
	s := Attach(td, &rigidBody{})

	require.NoError(t, s.Set("Note", "hello"))
	assert.False(t, s.IsDirty())
	assert.True(t, s.Flush().IsEmpty())

	require.NoError(t, s.Set("Mass", float32(3)))
	assert.True(t, s.IsDirty())
	assert.Equal(t, []string{"Mass"}, s.Flush().Names())
	assert.False(t, s.IsDirty())
}

func TestFlushCoalescesInFirstDirtyOrder(t *testing.T) {
	td := rigidBodyDesc(t)
	s := Attach(td, &rigidBody{})

	require.NoError(t, s.Set("Position", common.Vector3{X: 1}))
	require.NoError(t, s.Set("Mass", 1.0))
	require.NoError(t, s.Set("Position", common.Vector3{X: 2}))
	require.NoError(t, s.Set("Position", common.Vector3{X: 3}))

	txn := s.Flush()
	assert.Equal(t, []string{"Position", "Mass"}, txn.Names())

	replica := &rigidBody{}
	require.NoError(t, Attach(td, replica).Apply(txn))
	assert.Equal(t, common.Vector3{X: 3}, replica.Position)
	assert.Equal(t, float32(1), replica.Mass)
}

func TestFailedSetIsNotDirty(t *testing.T) {
	td := rigidBodyDesc(t)
	s := Attach(td, &rigidBody{})

	assert.Error(t, s.Set("Mass", "heavy"))
	assert.Error(t, s.Set("Layer", 9))
	assert.True(t, common.IsError(s.Set("Owner", "bob"), common.ErrReadOnly))
	assert.False(t, s.IsDirty())
}

func TestApplyFlushReproducesState(t *testing.T) {
	td := rigidBodyDesc(t)
	authority := &rigidBody{}
	s := Attach(td, authority)

	require.NoError(t, s.Set("Position", common.Vector3{X: 1, Y: 2, Z: 3}))
	require.NoError(t, s.Set("Sleeping", true))
	require.NoError(t, s.Set("Layer", "water"))

	replica := &rigidBody{}
	require.NoError(t, Attach(td, replica).Apply(s.Flush()))
	assert.Equal(t, authority.Position, replica.Position)
	assert.Equal(t, authority.Sleeping, replica.Sleeping)
	assert.Equal(t, int64(1), replica.Layer)
}

func TestApplyOwnFlushIsNoop(t *testing.T) {
	td := rigidBodyDesc(t)
	rb := &rigidBody{Owner: "alice", Note: "kept"}
	s := Attach(td, rb)

	require.NoError(t, s.Set("Position", common.Vector3{X: 1, Y: 2, Z: 3}))
	require.NoError(t, s.Set("Mass", float32(2.5)))
	require.NoError(t, s.Set("Layer", "ui"))
	before := *rb

	changed := 0
	s.OnChanged(func(name string) { changed++ })
	require.NoError(t, s.Apply(s.Flush()))
	assert.Equal(t, before, *rb)
	assert.False(t, s.IsDirty())
	assert.True(t, s.Flush().IsEmpty())
	assert.Equal(t, 3, changed)
}

func TestSnapshot(t *testing.T) {
	td := rigidBodyDesc(t)
	s := Attach(td, &rigidBody{Position: common.Vector3{X: 5}, Mass: 2, Owner: "alice", Note: "x"})

	snap := s.Snapshot()
	assert.Equal(t, []string{"Position", "Mass", "Sleeping", "Owner", "Layer"}, snap.Names())

	// Owner is read-only and is skipped on apply
	replica := &rigidBody{}
	require.NoError(t, Attach(td, replica).Apply(snap))
	assert.Equal(t, common.Vector3{X: 5}, replica.Position)
	assert.Equal(t, float32(2), replica.Mass)
	assert.Equal(t, "", replica.Owner)
	assert.Equal(t, "", replica.Note)
}

func TestApplyMalformedChangesNothing(t *testing.T) {
	td := rigidBodyDesc(t)
	replica := &rigidBody{Mass: 7}
	s := Attach(td, replica)
	notified := 0
	s.OnChanged(func(name string) { notified++ })

	txn := Transaction{Entries: []Entry{
		{Name: "Mass", Value: mustEncode(t, float32(1))},
		{Name: "Position", Value: []byte{0xc1}},
	}}
	err := s.Apply(txn)
	assert.True(t, common.IsError(err, common.ErrDecodeFailure))
	assert.Equal(t, float32(7), replica.Mass)
	assert.Equal(t, 0, notified)

	txn = Transaction{Entries: []Entry{
		{Name: "Mass", Value: mustEncode(t, float32(1))},
		{Name: "Layer", Value: mustEncode(t, int64(12))},
	}}
	err = s.Apply(txn)
	assert.True(t, common.IsError(err, common.ErrDecodeFailure))
	assert.Equal(t, float32(7), replica.Mass)
}

func TestApplySkipsUnknownProperty(t *testing.T) {
	td := rigidBodyDesc(t)
	replica := &rigidBody{}
	s := Attach(td, replica)

	txn := Transaction{Entries: []Entry{
		{Name: "Velocity", Value: mustEncode(t, common.Vector3{X: 1})},
		{Name: "Mass", Value: mustEncode(t, float32(4))},
	}}
	require.NoError(t, s.Apply(txn))
	assert.Equal(t, float32(4), replica.Mass)
}

func TestApplyNotifiesOncePerProperty(t *testing.T) {
	td := rigidBodyDesc(t)
	replica := &rigidBody{}
	s := Attach(td, replica)

	var got []string
	h := s.OnChanged(func(name string) { got = append(got, name) })

	txn := Transaction{Entries: []Entry{
		{Name: "Mass", Value: mustEncode(t, float32(1))},
		{Name: "Sleeping", Value: mustEncode(t, true)},
		{Name: "Mass", Value: mustEncode(t, float32(2))},
	}}
	require.NoError(t, s.Apply(txn))
	assert.Equal(t, []string{"Mass", "Sleeping"}, got)
	assert.Equal(t, float32(2), replica.Mass)

	assert.True(t, s.RemoveListener(h))
	assert.False(t, s.RemoveListener(h))
	require.NoError(t, s.Apply(txn))
	assert.Len(t, got, 2)
}

func TestDiscard(t *testing.T) {
	td := rigidBodyDesc(t)
	s := Attach(td, &rigidBody{})
	require.NoError(t, s.Set("Mass", float32(1)))
	s.Discard()
	assert.True(t, s.Flush().IsEmpty())

	require.NoError(t, s.MarkDirty("Position"))
	assert.Equal(t, 1, s.Flush().Len())
	assert.Error(t, s.MarkDirty("Note"))
}
