package object

import (
	"testing"

	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/reflection"
	"github.com/goreplica/goreplica/engine/template"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	rigidBodyType common.ComponentType = 0x01
	tagType       common.ComponentType = 0x02
	hudType       common.ComponentType = 0x03
	aiType        common.ComponentType = 0x04
)

type rigidBody struct {
	Component
	Position common.Vector3
	Mass     float32

	created   int
	destroyed int
	changed   []string
}

func (rb *rigidBody) DescribeComponentType(desc *ComponentTypeDesc) {
	desc.DefineProperty(reflection.NewProperty("Position", reflection.KindVector,
		func(o interface{}) interface{} { return o.(*rigidBody).Position },
		func(o interface{}, v interface{}) { o.(*rigidBody).Position = v.(common.Vector3) },
	).MarkSynced())
	desc.DefineProperty(reflection.NewProperty("Mass", reflection.KindFloat,
		func(o interface{}) interface{} { return o.(*rigidBody).Mass },
		func(o interface{}, v interface{}) { o.(*rigidBody).Mass = v.(float32) },
	))
}

func (rb *rigidBody) OnCreated() {
	rb.created++
}

func (rb *rigidBody) OnDestroy() {
	rb.destroyed++
}

func (rb *rigidBody) OnPropertyChanged(name string) {
	rb.changed = append(rb.changed, name)
}

type tag struct {
	Component
	Label string
}

func (t *tag) DescribeComponentType(desc *ComponentTypeDesc) {
	desc.SetFlags(Multiple | CanDestroy)
	desc.DefineProperty(reflection.NewProperty("Label", reflection.KindString,
		func(o interface{}) interface{} { return o.(*tag).Label },
		func(o interface{}, v interface{}) { o.(*tag).Label = v.(string) },
	).MarkSynced())
}

type hud struct {
	Component
}

func (h *hud) DescribeComponentType(desc *ComponentTypeDesc) {
	desc.SetFlags(ClientOnly)
}

type ai struct {
	Component
}

func (a *ai) DescribeComponentType(desc *ComponentTypeDesc) {
	desc.SetFlags(ServerOnly)
}

type mapTemplates map[string]*template.ObjectTemplate

func (mt mapTemplates) LoadObjectTemplate(name string) (*template.ObjectTemplate, error) {
	t, ok := mt[name]
	if !ok {
		return nil, errors.Wrapf(common.ErrNotFound, "template %s", name)
	}
	return t, nil
}

func newTestTypes(t *testing.T) *TypeRegistry {
	tr := NewTypeRegistry()
	_, err := tr.RegisterComponent(rigidBodyType, "RigidBody", &rigidBody{})
	require.NoError(t, err)
	_, err = tr.RegisterComponent(tagType, "Tag", &tag{})
	require.NoError(t, err)
	_, err = tr.RegisterComponent(hudType, "Hud", &hud{})
	require.NoError(t, err)
	_, err = tr.RegisterComponent(aiType, "AI", &ai{})
	require.NoError(t, err)
	return tr
}

func newTestManager(t *testing.T, mode common.Mode) *Manager {
	return NewManager(Config{
		Self:  common.GenPeerID(),
		Mode:  mode,
		Types: newTestTypes(t),
		Templates: mapTemplates{
			"Crate": {
				Name: "Crate",
				Properties: []template.PropertyPreset{
					{Name: "Active", Value: false},
				},
				Components: []template.ComponentTemplate{
					{Type: "RigidBody", Name: "Body", Properties: []template.PropertyPreset{
						{Name: "Position", Value: []interface{}{1, 2.5, 3}},
						{Name: "Mass", Value: 12.5},
					}},
					{Type: "Hud", Name: "Hud"},
					{Type: "Tag", Name: "Label", Properties: []template.PropertyPreset{
						{Name: "Label", Value: "crate"},
					}},
				},
			},
		},
	})
}

type eventRecorder struct {
	events []Event
}

func (r *eventRecorder) record(ev Event) {
	r.events = append(r.events, ev)
}

func (r *eventRecorder) names() []string {
	var names []string
	for _, ev := range r.events {
		if ev.Component != nil {
			names = append(names, ev.Kind.String()+":"+ev.Object.Name()+"."+ev.Component.Name())
		} else {
			names = append(names, ev.Kind.String()+":"+ev.Object.Name())
		}
	}
	return names
}

func TestRegisterComponent(t *testing.T) {
	tr := newTestTypes(t)

	_, err := tr.RegisterComponent(rigidBodyType, "Other", &tag{})
	assert.True(t, common.IsError(err, common.ErrDuplicateType))
	_, err = tr.RegisterComponent(0x10, "RigidBody", &tag{})
	assert.True(t, common.IsError(err, common.ErrDuplicateType))

	desc, err := tr.LookupByName("RigidBody")
	require.NoError(t, err)
	assert.Equal(t, rigidBodyType, desc.TypeCode())
	assert.Len(t, desc.Reflected().Properties(), 2)

	_, err = tr.Lookup(0x7f)
	assert.True(t, common.IsError(err, common.ErrUnknownType))

	assert.Len(t, tr.ComponentTypes(), 4)
	assert.Contains(t, tr.Fingerprints(), ObjectTypeName)
}

func TestCreateObjectAndComponent(t *testing.T) {
	m := newTestManager(t, common.ModeServer)
	rec := &eventRecorder{}
	m.Subscribe(rec.record)

	player, err := m.CreateObject("Player1", common.ModeServer, common.Remote)
	require.NoError(t, err)
	assert.Equal(t, common.ObjectID(1), player.ID())
	assert.True(t, player.IsAuthority())
	assert.True(t, player.IsReplicated())

	c, err := m.CreateComponent(player, rigidBodyType, "")
	require.NoError(t, err)
	assert.Equal(t, "RigidBody", c.Name())
	rb := c.I.(*rigidBody)
	assert.Equal(t, 1, rb.created)

	require.NoError(t, c.Set("Position", common.Vector3{X: 1, Y: 2, Z: 3}))
	assert.Equal(t, common.Vector3{X: 1, Y: 2, Z: 3}, rb.Position)
	assert.Equal(t, []string{"Position"}, rb.changed)
	assert.True(t, c.Synchronizer().IsDirty())

	assert.Equal(t, []string{
		"ObjectCreated:Player1",
		"ComponentCreated:Player1.RigidBody",
		"PropertyChanged:Player1.RigidBody",
	}, rec.names())
	assert.False(t, rec.events[2].IsRemote())

	found, err := m.FindObject(player.ID())
	require.NoError(t, err)
	assert.Same(t, player, found)
	found, err = m.FindObjectByName("Player1")
	require.NoError(t, err)
	assert.Same(t, player, found)
}

func TestCreateErrors(t *testing.T) {
	m := newTestManager(t, common.ModeServer)
	player, err := m.CreateObject("Player1", common.ModeServer, common.Remote)
	require.NoError(t, err)

	_, err = m.CreateObject("Player1", common.ModeServer, common.Remote)
	assert.True(t, common.IsError(err, common.ErrDuplicateName))
	_, err = m.CreateObjectWithID(player.ID(), "Player2", common.ModeServer, common.Remote)
	assert.True(t, common.IsError(err, common.ErrDuplicateName))

	_, err = m.CreateComponent(player, 0x7f, "")
	assert.True(t, common.IsError(err, common.ErrUnknownType))

	_, err = m.CreateComponent(player, rigidBodyType, "Body")
	require.NoError(t, err)
	_, err = m.CreateComponent(player, rigidBodyType, "Body2")
	assert.True(t, common.IsError(err, common.ErrDuplicateType))
	_, err = m.CreateComponent(player, tagType, "Body")
	assert.True(t, common.IsError(err, common.ErrDuplicateName))

	_, err = m.CreateComponent(player, tagType, "A")
	require.NoError(t, err)
	_, err = m.CreateComponent(player, tagType, "B")
	require.NoError(t, err)
	assert.Len(t, player.ComponentsByType(tagType), 2)

	_, err = m.CreateComponent(player, hudType, "")
	assert.True(t, common.IsError(err, common.ErrUnknownType))
	_, err = m.CreateComponent(player, aiType, "")
	require.NoError(t, err)

	_, err = m.FindObject(999)
	assert.True(t, common.IsError(err, common.ErrNotFound))
	_, err = m.FindObjectByName("nobody")
	assert.True(t, common.IsError(err, common.ErrNotFound))
}

func TestDestroyCascade(t *testing.T) {
	m := newTestManager(t, common.ModeServer)
	parent, err := m.CreateObject("Parent", common.ModeServer, common.Remote)
	require.NoError(t, err)
	child, err := m.CreateChildObject(parent, "Child", common.ModeServer, common.Remote)
	require.NoError(t, err)
	_, err = m.CreateComponent(parent, rigidBodyType, "Body")
	require.NoError(t, err)
	_, err = m.CreateComponent(parent, tagType, "Label")
	require.NoError(t, err)
	childBody, err := m.CreateComponent(child, rigidBodyType, "Body")
	require.NoError(t, err)
	assert.Same(t, parent, child.Parent())
	assert.Equal(t, []*Object{child}, parent.Children())

	rec := &eventRecorder{}
	m.Subscribe(rec.record)
	require.NoError(t, m.DestroyObject(parent.ID()))

	assert.Equal(t, []string{
		"ComponentDestroyed:Child.Body",
		"ObjectDestroyed:Child",
		"ComponentDestroyed:Parent.Label",
		"ComponentDestroyed:Parent.Body",
		"ObjectDestroyed:Parent",
	}, rec.names())
	assert.Equal(t, 1, childBody.I.(*rigidBody).destroyed)
	assert.True(t, parent.IsDestroyed())
	assert.True(t, child.IsDestroyed())
	assert.Equal(t, 0, m.Len())

	err = m.DestroyObject(parent.ID())
	assert.True(t, common.IsError(err, common.ErrNotFound))
	_, err = m.CreateObject("Parent", common.ModeServer, common.Remote)
	assert.NoError(t, err)
}

func TestDestroyComponent(t *testing.T) {
	m := newTestManager(t, common.ModeServer)
	o, err := m.CreateObject("Player1", common.ModeServer, common.Remote)
	require.NoError(t, err)
	c, err := m.CreateComponent(o, tagType, "Label")
	require.NoError(t, err)

	require.NoError(t, c.Destroy())
	assert.Nil(t, o.Component("Label"))
	assert.Empty(t, o.Components())
	assert.True(t, common.IsError(c.Set("Label", "x"), common.ErrNotFound))

	err = m.DestroyComponent(o, "Label")
	assert.True(t, common.IsError(err, common.ErrNotFound))
}

func TestQueueDestroyObject(t *testing.T) {
	m := newTestManager(t, common.ModeServer)
	o, err := m.CreateObject("Player1", common.ModeServer, common.Remote)
	require.NoError(t, err)

	m.QueueDestroyObject(o.ID())
	assert.False(t, o.IsDestroyed())
	m.Tick()
	assert.True(t, o.IsDestroyed())
	m.Tick()
}

func TestObjectsInIDOrder(t *testing.T) {
	m := newTestManager(t, common.ModeServer)
	_, err := m.CreateObjectWithID(10, "B", common.ModeServer, common.Local)
	require.NoError(t, err)
	a, err := m.CreateObject("A", common.ModeServer, common.Local)
	require.NoError(t, err)
	assert.Equal(t, common.ObjectID(11), a.ID())

	objects := m.Objects()
	require.Len(t, objects, 2)
	assert.Equal(t, "B", objects[0].Name())
	assert.Equal(t, "A", objects[1].Name())

	m.Reset()
	assert.Equal(t, 0, m.Len())
}

func TestClientObjectIDs(t *testing.T) {
	m := newTestManager(t, common.ModeClient)
	o, err := m.CreateObject("Local", common.ModeClient, common.Remote)
	require.NoError(t, err)
	assert.Equal(t, common.ClientObjectIDBase(m.Self())+1, o.ID())
}

func TestForcedLocal(t *testing.T) {
	m := newTestManager(t, common.ModeClient)
	o, err := m.CreateObject("Player1", common.ModeClient, common.Remote)
	require.NoError(t, err)

	body, err := m.CreateComponent(o, rigidBodyType, "")
	require.NoError(t, err)
	assert.True(t, body.IsReplicated())

	h, err := m.CreateComponent(o, hudType, "")
	require.NoError(t, err)
	assert.Equal(t, common.Local, h.NetworkingType())
	assert.Error(t, h.SetLocalOverride(true))

	rec := &eventRecorder{}
	m.Subscribe(rec.record)
	require.NoError(t, body.SetLocalOverride(true))
	assert.False(t, body.IsReplicated())
	assert.Equal(t, []string{"NetworkingChanged:Player1.RigidBody"}, rec.names())
	require.NoError(t, body.SetLocalOverride(true))
	assert.Len(t, rec.events, 1)

	offline := NewManager(Config{Mode: common.ModeClient, Offline: true, Types: m.Types()})
	lo, err := offline.CreateObject("Player1", common.ModeClient, common.Remote)
	require.NoError(t, err)
	assert.Equal(t, common.Local, lo.NetworkingType())
}

func TestRemoteConstruction(t *testing.T) {
	server := newTestManager(t, common.ModeServer)
	client := NewManager(Config{Mode: common.ModeClient, Types: server.Types()})

	o, err := server.CreateObjectWithID(7, "Player1", common.ModeServer, common.Remote)
	require.NoError(t, err)
	c, err := server.CreateComponent(o, rigidBodyType, "")
	require.NoError(t, err)
	require.NoError(t, c.Set("Position", common.Vector3{X: 1, Y: 2, Z: 3}))

	rec := &eventRecorder{}
	client.Subscribe(rec.record)
	ro, err := client.ConstructRemoteObject(7, "Player1", common.ModeServer, server.Self(), server.Self(), "", 0, o.Synchronizer().Snapshot())
	require.NoError(t, err)
	rc, err := client.ConstructRemoteComponent(ro, rigidBodyType, "RigidBody", common.ModeServer, server.Self(), server.Self(), "", c.Synchronizer().Snapshot())
	require.NoError(t, err)

	assert.False(t, ro.IsAuthority())
	assert.Equal(t, common.Vector3{X: 1, Y: 2, Z: 3}, rc.I.(*rigidBody).Position)
	assert.False(t, rc.Synchronizer().IsDirty())
	require.Len(t, rec.events, 2)
	assert.True(t, rec.events[0].IsRemote())
	assert.Equal(t, server.Self(), rec.events[1].Origin)

	require.NoError(t, c.Set("Position", common.Vector3{X: 4, Y: 5, Z: 6}))
	require.NoError(t, client.ApplyTransaction(ro, rc, c.Synchronizer().Flush(), server.Self()))
	assert.Equal(t, common.Vector3{X: 4, Y: 5, Z: 6}, rc.I.(*rigidBody).Position)
	last := rec.events[len(rec.events)-1]
	assert.Equal(t, PropertyChanged, last.Kind)
	assert.Equal(t, "Position", last.Property)
	assert.Equal(t, server.Self(), last.Origin)
	assert.Equal(t, []string{"Position"}, rc.I.(*rigidBody).changed)

	_, err = client.ConstructRemoteObject(7, "Player1", common.ModeServer, server.Self(), server.Self(), "", 0, o.Synchronizer().Snapshot())
	assert.True(t, common.IsError(err, common.ErrDuplicateName))

	require.NoError(t, client.DestroyRemoteObject(7, server.Self()))
	last = rec.events[len(rec.events)-1]
	assert.Equal(t, ObjectDestroyed, last.Kind)
	assert.Equal(t, server.Self(), last.Origin)
}

func TestCreateObjectFromTemplate(t *testing.T) {
	m := newTestManager(t, common.ModeServer)
	o, err := m.CreateObjectFromTemplate("Crate", "", common.ModeServer, common.Remote)
	require.NoError(t, err)
	assert.Equal(t, "Crate", o.Name())
	assert.False(t, o.IsActive())
	assert.Nil(t, o.Component("Hud"))

	body := o.Component("Body")
	require.NotNil(t, body)
	rb := body.I.(*rigidBody)
	assert.Equal(t, common.Vector3{X: 1, Y: 2.5, Z: 3}, rb.Position)
	assert.Equal(t, float32(12.5), rb.Mass)
	assert.Equal(t, "crate", o.Component("Label").I.(*tag).Label)

	require.NoError(t, body.Set("Mass", float32(99)))
	require.NoError(t, body.Set("Position", common.Vector3{}))
	assert.True(t, body.IsOverridden("Mass"))
	rb.Position = common.Vector3{X: 9}
	require.NoError(t, o.ReapplyTemplate())
	assert.Equal(t, float32(99), rb.Mass)
	assert.Equal(t, common.Vector3{X: 9}, rb.Position)

	_, err = m.CreateObjectFromTemplate("Missing", "", common.ModeServer, common.Remote)
	assert.True(t, common.IsError(err, common.ErrNotFound))
}

func TestDuplicate(t *testing.T) {
	m := newTestManager(t, common.ModeServer)
	o, err := m.CreateObject("Player1", common.ModeServer, common.Remote)
	require.NoError(t, err)
	c, err := m.CreateComponent(o, rigidBodyType, "Body")
	require.NoError(t, err)
	require.NoError(t, c.Set("Position", common.Vector3{X: 1, Y: 2, Z: 3}))
	require.NoError(t, c.Set("Mass", float32(5)))
	require.NoError(t, o.SetActive(false))
	_, err = m.CreateChildObject(o, "Weapon", common.ModeServer, common.Remote)
	require.NoError(t, err)

	dup, err := o.Duplicate("Player2")
	require.NoError(t, err)
	assert.NotEqual(t, o.ID(), dup.ID())
	assert.False(t, dup.IsActive())
	assert.Empty(t, dup.Children())

	dc := dup.Component("Body")
	require.NotNil(t, dc)
	assert.Equal(t, common.Vector3{X: 1, Y: 2, Z: 3}, dc.I.(*rigidBody).Position)
	assert.Equal(t, float32(0), dc.I.(*rigidBody).Mass)

	_, err = o.Duplicate("Player2")
	assert.True(t, common.IsError(err, common.ErrDuplicateName))
}

func TestHookPanicIsContained(t *testing.T) {
	m := newTestManager(t, common.ModeServer)
	o, err := m.CreateObject("Player1", common.ModeServer, common.Remote)
	require.NoError(t, err)
	m.Subscribe(func(ev Event) {
		panic("listener failure")
	})
	_, err = m.CreateComponent(o, rigidBodyType, "")
	assert.NoError(t, err)
}
