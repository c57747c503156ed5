package plugin

import (
	"time"

	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/goreplica/goreplica/engine/reflection"
	"github.com/goreplica/goreplica/engine/replica"
	"github.com/pkg/errors"
)

// Names of the permissions checked for client requests
const (
	PermObjectCreate     = "object.create"
	PermComponentCreate  = "component.create"
	PermObjectDestroy    = "object.destroy"
	PermComponentDestroy = "component.destroy"
	PermPropertyChange   = "property.change"
)

// Rule limits one permission
type Rule struct {
	Allowed         bool
	MaxItems        int           // items held at once, 0 for unlimited
	MaxItemsPerTime int           // items per Window, 0 for unlimited
	Window          time.Duration // defaults to one second
}

type usage struct {
	items       int
	windowStart time.Time
	windowCount int
}

// PermissionManager decides which client requests a server accepts
//
// The defaults are synchronized so clients can check a request before sending it. Per peer
// rules and usage only live on the server.
type PermissionManager struct {
	Plugin

	AllowConstruct      bool
	AllowDestroy        bool
	AllowSerialize      bool
	MaxObjectsPerPeer   int64
	MaxChangesPerSecond int64

	overrides map[string]Rule
	peerRules map[common.PeerID]map[string]Rule
	usage     map[common.PeerID]map[string]*usage
	now       func() time.Time
}

// DescribePlugin returns the properties of PermissionManager
func (pm *PermissionManager) DescribePlugin() []*reflection.PropertyDescriptor {
	self := func(o interface{}) *PermissionManager { return o.(*PermissionManager) }
	return []*reflection.PropertyDescriptor{
		reflection.NewProperty("AllowConstruct", reflection.KindBool,
			func(o interface{}) interface{} { return self(o).AllowConstruct },
			func(o interface{}, v interface{}) { self(o).AllowConstruct = v.(bool) }).MarkSynced(),
		reflection.NewProperty("AllowDestroy", reflection.KindBool,
			func(o interface{}) interface{} { return self(o).AllowDestroy },
			func(o interface{}, v interface{}) { self(o).AllowDestroy = v.(bool) }).MarkSynced(),
		reflection.NewProperty("AllowSerialize", reflection.KindBool,
			func(o interface{}) interface{} { return self(o).AllowSerialize },
			func(o interface{}, v interface{}) { self(o).AllowSerialize = v.(bool) }).MarkSynced(),
		reflection.NewProperty("MaxObjectsPerPeer", reflection.KindInt,
			func(o interface{}) interface{} { return self(o).MaxObjectsPerPeer },
			func(o interface{}, v interface{}) { self(o).MaxObjectsPerPeer = v.(int64) }).MarkSynced(),
		reflection.NewProperty("MaxChangesPerSecond", reflection.KindInt,
			func(o interface{}) interface{} { return self(o).MaxChangesPerSecond },
			func(o interface{}, v interface{}) { self(o).MaxChangesPerSecond = v.(int64) }).MarkSynced(),
	}
}

// Create seeds the defaults from the [permission] config
func (pm *PermissionManager) Create() {
	cfg := pm.Manager().Config().Permission
	pm.Set("AllowConstruct", cfg.AllowClientConstruct)
	pm.Set("AllowDestroy", cfg.AllowClientDestroy)
	pm.Set("AllowSerialize", cfg.AllowClientSerialize)
	pm.Set("MaxObjectsPerPeer", cfg.MaxObjectsPerPeer)
	pm.Set("MaxChangesPerSecond", cfg.MaxChangesPerSecond)
}

// OnCreated initializes the rule tables
func (pm *PermissionManager) OnCreated() {
	pm.overrides = map[string]Rule{}
	pm.peerRules = map[common.PeerID]map[string]Rule{}
	pm.usage = map[common.PeerID]map[string]*usage{}
	if pm.now == nil {
		pm.now = time.Now
	}
}

// OnPeerConnected is a no-op, usage is tracked from the first request
func (pm *PermissionManager) OnPeerConnected(peer common.PeerID) {
}

// OnPeerDisconnected forgets the usage and rules of the peer
func (pm *PermissionManager) OnPeerDisconnected(peer common.PeerID) {
	delete(pm.usage, peer)
	delete(pm.peerRules, peer)
}

func (pm *PermissionManager) defaultRule(name string) Rule {
	switch name {
	case PermObjectCreate:
		return Rule{Allowed: pm.AllowConstruct, MaxItems: int(pm.MaxObjectsPerPeer)}
	case PermComponentCreate:
		return Rule{Allowed: pm.AllowConstruct}
	case PermObjectDestroy, PermComponentDestroy:
		return Rule{Allowed: pm.AllowDestroy}
	case PermPropertyChange:
		return Rule{Allowed: pm.AllowSerialize, MaxItemsPerTime: int(pm.MaxChangesPerSecond), Window: time.Second}
	}
	return Rule{Allowed: true}
}

// SetRule overrides the default rule of a permission
func (pm *PermissionManager) SetRule(name string, rule Rule) {
	pm.overrides[name] = rule
}

// SetPeerRule sets the rule of a permission for one peer
func (pm *PermissionManager) SetPeerRule(peer common.PeerID, name string, rule Rule) {
	rules := pm.peerRules[peer]
	if rules == nil {
		rules = map[string]Rule{}
		pm.peerRules[peer] = rules
	}
	rules[name] = rule
}

// Rule returns the effective rule of a permission for a peer
func (pm *PermissionManager) Rule(peer common.PeerID, name string) Rule {
	if rule, ok := pm.peerRules[peer][name]; ok {
		return rule
	}
	if rule, ok := pm.overrides[name]; ok {
		return rule
	}
	return pm.defaultRule(name)
}

func (pm *PermissionManager) usageOf(peer common.PeerID, name string) *usage {
	byName := pm.usage[peer]
	if byName == nil {
		byName = map[string]*usage{}
		pm.usage[peer] = byName
	}
	u := byName[name]
	if u == nil {
		u = &usage{}
		byName[name] = u
	}
	return u
}

// Check consumes n items of a permission, or fails with common.ErrPermissionDenied
func (pm *PermissionManager) Check(peer common.PeerID, name string, n int) error {
	rule := pm.Rule(peer, name)
	if !rule.Allowed {
		return errors.Wrapf(common.ErrPermissionDenied, "%s is not allowed to %s", peer, name)
	}
	u := pm.usageOf(peer, name)
	if rule.MaxItems > 0 && u.items+n > rule.MaxItems {
		return errors.Wrapf(common.ErrPermissionDenied, "%s reached the %s limit of %d", peer, name, rule.MaxItems)
	}
	if rule.MaxItemsPerTime > 0 {
		window := rule.Window
		if window <= 0 {
			window = time.Second
		}
		now := pm.now()
		if now.Sub(u.windowStart) >= window {
			u.windowStart = now
			u.windowCount = 0
		}
		if u.windowCount+n > rule.MaxItemsPerTime {
			return errors.Wrapf(common.ErrPermissionDenied, "%s exceeds %d %s per %s", peer, rule.MaxItemsPerTime, name, window)
		}
		u.windowCount += n
	}
	u.items += n
	return nil
}

// Release returns n items of a permission
func (pm *PermissionManager) Release(peer common.PeerID, name string, n int) {
	u := pm.usageOf(peer, name)
	u.items -= n
	if u.items < 0 {
		u.items = 0
	}
}

// Items returns the number of items of a permission held by a peer
func (pm *PermissionManager) Items(peer common.PeerID, name string) int {
	if u := pm.usage[peer][name]; u != nil {
		return u.items
	}
	return 0
}

// Authorize implements replica.Authorizer
func (pm *PermissionManager) Authorize(req replica.Request) error {
	switch req.Kind {
	case replica.RequestConstruct:
		if req.Component == "" {
			return pm.Check(req.Peer, PermObjectCreate, 1)
		}
		return pm.Check(req.Peer, PermComponentCreate, 1)
	case replica.RequestDestroy:
		if req.Component == "" {
			if err := pm.Check(req.Peer, PermObjectDestroy, 1); err != nil {
				return err
			}
			pm.Release(req.Peer, PermObjectCreate, 1)
			return nil
		}
		if err := pm.Check(req.Peer, PermComponentDestroy, 1); err != nil {
			return err
		}
		pm.Release(req.Peer, PermComponentCreate, 1)
		return nil
	case replica.RequestSerialize:
		return pm.Check(req.Peer, PermPropertyChange, req.Changes)
	}
	gwlog.Warnf("%s: unknown request %s", pm, req)
	return errors.Wrapf(common.ErrPermissionDenied, "%s", req)
}
