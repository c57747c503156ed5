package config

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-ini/ini"
	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/consts"
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/pkg/errors"
)

const (
	_DEFAULT_CONFIG_FILE        = "goreplica.ini"
	_DEFAULT_LOG_LEVEL          = "debug"
	_DEFAULT_STORAGE_DB         = "goreplica"
	_DEFAULT_TEMPLATE_DIRECTORY = "_templates"
	_DEFAULT_SERVER_ADDR        = "127.0.0.1:14000"
	_DEFAULT_STATS_INTERVAL     = time.Second * 5
)

var (
	configFilePath  = _DEFAULT_CONFIG_FILE
	goReplicaConfig *GoReplicaConfig
	configLock      sync.Mutex
)

// ServerConfig defines fields of server config
type ServerConfig struct {
	ListenAddr         string
	KCPAddr            string
	HTTPAddr           string
	CompressConnection bool
	LogFile            string
	LogStderr          bool
	LogLevel           string
	TickInterval       time.Duration
	GoMaxProcs         int
	OpMonDumpInterval  time.Duration
}

// ClientConfig defines fields of client config
type ClientConfig struct {
	ServerAddr         string
	Transport          string // tcp, kcp or websocket
	CompressConnection bool
	LogFile            string
	LogStderr          bool
	LogLevel           string
	TickInterval       time.Duration
	Offline            bool
}

// ReplicaConfig defines fields of replica config
type ReplicaConfig struct {
	PendingSerializeTimeout time.Duration
	MaxPendingSerialize     int
}

// StorageConfig defines fields of template storage config
type StorageConfig struct {
	Type       string // Type of storage (filesystem, mongodb, redis, redis_cluster)
	Directory  string // Directory of filesystem storage (filesystem)
	Url        string // Connection URL (mongodb, redis)
	DB         string // Database name (mongodb, redis)
	StartNodes common.StringSet
}

// PermissionConfig defines the default rules of the permission plugin
type PermissionConfig struct {
	AllowClientConstruct bool
	AllowClientDestroy   bool
	AllowClientSerialize bool
	MaxObjectsPerPeer    int // 0 means unlimited
	MaxChangesPerSecond  int // 0 means unlimited
}

// PluginsConfig defines fields of the built-in plugins
type PluginsConfig struct {
	StatsInterval    time.Duration
	ResourceLocation string
	ResourceType     string // http, ftp or local
}

// GoReplicaConfig defines the total config file structure
type GoReplicaConfig struct {
	Server     ServerConfig
	Client     ClientConfig
	Replica    ReplicaConfig
	Storage    StorageConfig
	Permission PermissionConfig
	Neighbors  map[string]string
	Plugins    PluginsConfig
}

// SetConfigFile sets the config file path (goreplica.ini by default)
func SetConfigFile(f string) {
	configFilePath = f
}

// GetConfigDir returns the directory of the config file
func GetConfigDir() string {
	dir, _ := path.Split(configFilePath)
	return dir
}

// GetConfigFilePath returns the config file path
func GetConfigFilePath() string {
	return configFilePath
}

// Get returns the total config
func Get() *GoReplicaConfig {
	configLock.Lock()
	defer configLock.Unlock()
	if goReplicaConfig == nil {
		goReplicaConfig = readGoReplicaConfig()
	}
	return goReplicaConfig
}

// Reload forces to reload the whole config
func Reload() *GoReplicaConfig {
	configLock.Lock()
	goReplicaConfig = nil
	configLock.Unlock()

	return Get()
}

// GetServer returns the server config
func GetServer() *ServerConfig {
	return &Get().Server
}

// GetClient returns the client config
func GetClient() *ClientConfig {
	return &Get().Client
}

// GetReplica returns the replica config
func GetReplica() *ReplicaConfig {
	return &Get().Replica
}

// GetStorage returns the storage config
func GetStorage() *StorageConfig {
	return &Get().Storage
}

// GetPermission returns the permission config
func GetPermission() *PermissionConfig {
	return &Get().Permission
}

// GetPlugins returns the plugins config
func GetPlugins() *PluginsConfig {
	return &Get().Plugins
}

// GetNeighbors returns the configured server neighbors
func GetNeighbors() map[string]string {
	return Get().Neighbors
}

// GetNeighborNames returns the configured server neighbor names, sorted
func GetNeighborNames() []string {
	neighbors := GetNeighbors()
	names := make([]string, 0, len(neighbors))
	for name := range neighbors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DumpPretty format config to string in pretty format
func DumpPretty(cfg interface{}) string {
	s, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return err.Error()
	}
	return string(s)
}

func readGoReplicaConfig() *GoReplicaConfig {
	config := GoReplicaConfig{
		Neighbors: map[string]string{},
	}
	gwlog.Infof("Using config file: %s", configFilePath)
	iniFile, err := ini.Load(configFilePath)
	checkConfigError(err, "")

	readServerConfig(iniFile.Section("server"), &config.Server)
	readClientConfig(iniFile.Section("client"), &config.Client)
	readReplicaConfig(iniFile.Section("replica"), &config.Replica)
	readStorageConfig(iniFile.Section("storage"), &config.Storage)
	readPermissionConfig(iniFile.Section("permission"), &config.Permission)
	readNeighborsConfig(iniFile.Section("neighbors"), config.Neighbors)
	readPluginsConfig(iniFile.Section("plugins"), &config.Plugins)

	for _, sec := range iniFile.Sections() {
		secName := strings.ToLower(sec.Name())
		switch secName {
		case "default", "server", "client", "replica", "storage", "permission", "neighbors", "plugins":
		default:
			gwlog.Errorf("unknown section: %s", sec.Name())
		}
	}
	return &config
}

func readServerConfig(sec *ini.Section, sc *ServerConfig) {
	sc.ListenAddr = _DEFAULT_SERVER_ADDR
	sc.LogFile = "server.log"
	sc.LogStderr = true
	sc.LogLevel = _DEFAULT_LOG_LEVEL
	sc.TickInterval = consts.DEFAULT_TICK_INTERVAL

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "listen_addr" {
			sc.ListenAddr = key.MustString(sc.ListenAddr)
		} else if name == "kcp_addr" {
			sc.KCPAddr = key.MustString(sc.KCPAddr)
		} else if name == "http_addr" {
			sc.HTTPAddr = key.MustString(sc.HTTPAddr)
		} else if name == "compress_connection" {
			sc.CompressConnection = key.MustBool(sc.CompressConnection)
		} else if name == "log_file" {
			sc.LogFile = key.MustString(sc.LogFile)
		} else if name == "log_stderr" {
			sc.LogStderr = key.MustBool(sc.LogStderr)
		} else if name == "log_level" {
			sc.LogLevel = key.MustString(sc.LogLevel)
		} else if name == "tick_interval_ms" {
			sc.TickInterval = time.Millisecond * time.Duration(key.MustInt(int(sc.TickInterval/time.Millisecond)))
		} else if name == "go_max_procs" {
			sc.GoMaxProcs = key.MustInt(sc.GoMaxProcs)
		} else if name == "opmon_dump_interval_s" {
			sc.OpMonDumpInterval = time.Second * time.Duration(key.MustInt(0))
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
	if sc.ListenAddr == "" && sc.KCPAddr == "" && sc.HTTPAddr == "" {
		gwlog.Panicf("section %s: at least one of listen_addr, kcp_addr and http_addr must be set", sec.Name())
	}
	if sc.TickInterval <= 0 {
		gwlog.Panicf("section %s: tick_interval_ms must be positive", sec.Name())
	}
}

func readClientConfig(sec *ini.Section, cc *ClientConfig) {
	cc.ServerAddr = _DEFAULT_SERVER_ADDR
	cc.Transport = "tcp"
	cc.LogFile = "client.log"
	cc.LogStderr = true
	cc.LogLevel = _DEFAULT_LOG_LEVEL
	cc.TickInterval = consts.DEFAULT_TICK_INTERVAL

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "server_addr" {
			cc.ServerAddr = key.MustString(cc.ServerAddr)
		} else if name == "transport" {
			cc.Transport = strings.ToLower(key.MustString(cc.Transport))
		} else if name == "compress_connection" {
			cc.CompressConnection = key.MustBool(cc.CompressConnection)
		} else if name == "log_file" {
			cc.LogFile = key.MustString(cc.LogFile)
		} else if name == "log_stderr" {
			cc.LogStderr = key.MustBool(cc.LogStderr)
		} else if name == "log_level" {
			cc.LogLevel = key.MustString(cc.LogLevel)
		} else if name == "tick_interval_ms" {
			cc.TickInterval = time.Millisecond * time.Duration(key.MustInt(int(cc.TickInterval/time.Millisecond)))
		} else if name == "offline" {
			cc.Offline = key.MustBool(cc.Offline)
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
	switch cc.Transport {
	case "tcp", "kcp", "websocket":
	default:
		gwlog.Panicf("section %s: unknown transport %s", sec.Name(), cc.Transport)
	}
}

func readReplicaConfig(sec *ini.Section, rc *ReplicaConfig) {
	rc.PendingSerializeTimeout = consts.DEFAULT_PENDING_SERIALIZE_TIMEOUT
	rc.MaxPendingSerialize = consts.DEFAULT_MAX_PENDING_SERIALIZE

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "pending_serialize_timeout_ms" {
			rc.PendingSerializeTimeout = time.Millisecond * time.Duration(key.MustInt(int(rc.PendingSerializeTimeout/time.Millisecond)))
		} else if name == "max_pending_serialize" {
			rc.MaxPendingSerialize = key.MustInt(rc.MaxPendingSerialize)
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readStorageConfig(sec *ini.Section, config *StorageConfig) {
	// setup default values
	config.Type = "filesystem"
	config.Directory = _DEFAULT_TEMPLATE_DIRECTORY
	config.DB = _DEFAULT_STORAGE_DB
	config.Url = ""
	config.StartNodes = common.StringSet{}

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "type" {
			config.Type = key.MustString(config.Type)
		} else if name == "directory" {
			config.Directory = key.MustString(config.Directory)
		} else if name == "url" {
			config.Url = key.MustString(config.Url)
		} else if name == "db" {
			config.DB = key.MustString(config.DB)
		} else if strings.HasPrefix(name, "start_nodes_") {
			config.StartNodes.Add(key.MustString(""))
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}

	if config.Type == "redis" && !sec.HasKey("db") {
		config.DB = "0"
	}
	validateStorageConfig(config)
}

func validateStorageConfig(config *StorageConfig) {
	if config.Type == "filesystem" {
		if config.Directory == "" {
			gwlog.Panicf("directory is not set in %s storage config", config.Type)
		}
	} else if config.Type == "mongodb" {
		if config.Url == "" {
			gwlog.Panicf("url is not set in %s storage config", config.Type)
		}
		if config.DB == "" {
			gwlog.Panicf("db is not set in %s storage config", config.Type)
		}
	} else if config.Type == "redis" {
		if config.Url == "" {
			gwlog.Panicf("redis host is not set")
		}
		if _, err := strconv.Atoi(config.DB); err != nil {
			gwlog.Panic(errors.Wrap(err, "redis db must be integer"))
		}
	} else if config.Type == "redis_cluster" {
		if len(config.StartNodes) == 0 {
			gwlog.Panicf("must have at least 1 start_nodes for [storage].redis_cluster")
		}
		for s := range config.StartNodes {
			if s == "" {
				gwlog.Panicf("start_nodes must not be empty")
			}
		}
	} else {
		gwlog.Panicf("unknown storage type: %s", config.Type)
	}
}

func readPermissionConfig(sec *ini.Section, pc *PermissionConfig) {
	pc.AllowClientConstruct = true
	pc.AllowClientDestroy = true
	pc.AllowClientSerialize = true

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "allow_client_construct" {
			pc.AllowClientConstruct = key.MustBool(pc.AllowClientConstruct)
		} else if name == "allow_client_destroy" {
			pc.AllowClientDestroy = key.MustBool(pc.AllowClientDestroy)
		} else if name == "allow_client_serialize" {
			pc.AllowClientSerialize = key.MustBool(pc.AllowClientSerialize)
		} else if name == "max_objects_per_peer" {
			pc.MaxObjectsPerPeer = key.MustInt(pc.MaxObjectsPerPeer)
		} else if name == "max_changes_per_second" {
			pc.MaxChangesPerSecond = key.MustInt(pc.MaxChangesPerSecond)
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readNeighborsConfig(sec *ini.Section, neighbors map[string]string) {
	for _, key := range sec.Keys() {
		addr := key.MustString("")
		if addr == "" {
			gwlog.Panicf("section %s: neighbor %s has no address", sec.Name(), key.Name())
		}
		neighbors[key.Name()] = addr
	}
}

func readPluginsConfig(sec *ini.Section, pc *PluginsConfig) {
	pc.StatsInterval = _DEFAULT_STATS_INTERVAL
	pc.ResourceType = "local"

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "stats_interval_ms" {
			pc.StatsInterval = time.Millisecond * time.Duration(key.MustInt(int(pc.StatsInterval/time.Millisecond)))
		} else if name == "resource_location" {
			pc.ResourceLocation = key.MustString(pc.ResourceLocation)
		} else if name == "resource_type" {
			pc.ResourceType = strings.ToLower(key.MustString(pc.ResourceType))
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
	switch pc.ResourceType {
	case "http", "ftp", "local":
	default:
		gwlog.Panicf("section %s: unknown resource_type %s", sec.Name(), pc.ResourceType)
	}
}

func checkConfigError(err error, msg string) {
	if err != nil {
		if msg == "" {
			msg = err.Error()
		}
		gwlog.Panicf("read config error: %s", msg)
	}
}

// String formats the config for logging
func (config *GoReplicaConfig) String() string {
	return fmt.Sprintf("GoReplicaConfig<server=%s, storage=%s, neighbors=%d>", config.Server.ListenAddr, config.Storage.Type, len(config.Neighbors))
}
