package config

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/goreplica/goreplica/engine/gwlog"
)

func init() {
	SetConfigFile("../../goreplica.ini.sample")
}

func TestLoad(t *testing.T) {
	config := Get()
	if config == nil {
		t.FailNow()
	}
	gwlog.Infof("read goreplica config: %s", config)
	assert.Equal(t, "127.0.0.1:14000", config.Server.ListenAddr)
	assert.Equal(t, "127.0.0.1:14001", config.Server.KCPAddr)
	assert.Equal(t, time.Millisecond*20, config.Server.TickInterval)
	assert.Equal(t, "tcp", config.Client.Transport)
	assert.Equal(t, false, config.Client.Offline)
}

func TestReload(t *testing.T) {
	Get()
	config := Reload()
	assert.T(t, config != nil, "reload failed")
}

func TestGetReplica(t *testing.T) {
	cfg := GetReplica()
	assert.Equal(t, time.Second*5, cfg.PendingSerializeTimeout)
	assert.Equal(t, 64, cfg.MaxPendingSerialize)
}

func TestGetStorage(t *testing.T) {
	cfg := GetStorage()
	if cfg == nil {
		t.Errorf("storage config not found")
	}
	assert.Equal(t, "filesystem", cfg.Type)
	assert.Equal(t, "_templates", cfg.Directory)
	fmt.Fprintf(os.Stderr, "%s\n", DumpPretty(cfg))
}

func TestGetPermission(t *testing.T) {
	cfg := GetPermission()
	assert.T(t, cfg.AllowClientConstruct, "client construct should be allowed")
	assert.Equal(t, 100, cfg.MaxObjectsPerPeer)
	assert.Equal(t, 0, cfg.MaxChangesPerSecond)
}

func TestGetNeighbors(t *testing.T) {
	assert.Equal(t, []string{"east", "west"}, GetNeighborNames())
	assert.Equal(t, "10.0.0.2:14000", GetNeighbors()["east"])
}

func TestGetPlugins(t *testing.T) {
	cfg := GetPlugins()
	assert.Equal(t, time.Second*5, cfg.StatsInterval)
	assert.Equal(t, "http", cfg.ResourceType)
}
