// Package server runs a replication server: it accepts client peers over TCP, KCP and WebSocket
// and hosts the server plugins.
package server

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	_ "net/http/pprof"
	"os"
	"runtime"
	"time"

	"github.com/goreplica/goreplica/engine/async"
	"github.com/goreplica/goreplica/engine/binutil"
	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/config"
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/goreplica/goreplica/engine/node"
	"github.com/goreplica/goreplica/engine/object"
	"github.com/goreplica/goreplica/engine/plugin"
	"github.com/goreplica/goreplica/engine/post"
	"github.com/goreplica/goreplica/engine/storage"
	"github.com/goreplica/goreplica/engine/template"
	"github.com/goreplica/goreplica/engine/transport"
)

var args struct {
	peerID          string
	configFile      string
	logLevel        string
	pprofAddr       string
	pidFile         string
	runInDaemonMode bool
}

// ServerPlugins are the plugins every server creates
var ServerPlugins = []plugin.PluginType{
	plugin.PermissionManagerType,
	plugin.ResourceManagerType,
	plugin.ServerNeighborsType,
	plugin.ServerStatsType,
}

func parseArgs() {
	flag.StringVar(&args.peerID, "id", "", "set peer id, generated if empty")
	flag.StringVar(&args.configFile, "configfile", "", "set config file path")
	flag.StringVar(&args.logLevel, "log", "", "set log level, will override log level in config")
	flag.StringVar(&args.pprofAddr, "pprof", "", "set pprof http address")
	flag.StringVar(&args.pidFile, "pidfile", "goreplica-server.pid", "set pid file path in daemon mode")
	flag.BoolVar(&args.runInDaemonMode, "d", false, "run in daemon mode")
	flag.Parse()
}

// Run starts the server and blocks until it is terminated by SIGINT or SIGTERM
func Run(types *object.TypeRegistry, delegate IServerDelegate) {
	rand.Seed(time.Now().UnixNano())
	parseArgs()

	if args.runInDaemonMode {
		daemoncontext := binutil.Daemonize(args.pidFile)
		defer daemoncontext.Release()
	}

	if args.configFile != "" {
		config.SetConfigFile(args.configFile)
	}
	cfg := config.Get()
	fmt.Fprintf(os.Stderr, "Read server config: \n%s\n", config.DumpPretty(cfg.Server))

	if cfg.Server.GoMaxProcs > 0 {
		gwlog.Infof("SET GOMAXPROCS = %d", cfg.Server.GoMaxProcs)
		runtime.GOMAXPROCS(cfg.Server.GoMaxProcs)
	}
	logLevel := args.logLevel
	if logLevel == "" {
		logLevel = cfg.Server.LogLevel
	}
	binutil.SetupGWLog("server", logLevel, cfg.Server.LogFile, cfg.Server.LogStderr)
	binutil.SetupPprofServer(args.pprofAddr)

	if err := storage.Initialize(&cfg.Storage); err != nil {
		gwlog.Fatalf("initialize storage failed: %v", err)
	}
	defer storage.Shutdown()

	self := common.PeerID(args.peerID)
	if self.IsNil() {
		self = common.GenPeerID()
	}
	srv := transport.NewNetworkServer(self, transport.ServerConfig{
		ListenAddr:         cfg.Server.ListenAddr,
		KCPAddr:            cfg.Server.KCPAddr,
		HTTPAddr:           cfg.Server.HTTPAddr,
		CompressConnection: cfg.Server.CompressConnection,
	})

	n := node.New(node.Config{
		Self:          self,
		Mode:          common.ModeServer,
		Types:         types,
		Templates:     template.NewStore(storage.Reader{}),
		Transport:     srv,
		TickInterval:  cfg.Server.TickInterval,
		Replica:       cfg.Replica,
		Permission:    cfg.Permission,
		Plugins:       cfg.Plugins,
		Neighbors:     cfg.Neighbors,
		ServerPlugins: ServerPlugins,

		OpMonDumpInterval: cfg.Server.OpMonDumpInterval,
	})
	if err := n.Start(); err != nil {
		gwlog.Fatalf("start %s failed: %v", n, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		gwlog.Fatalf("start server transport failed: %v", err)
	}

	binutil.SetupSignals(func() {
		post.Post(func() {
			delegate.OnServerTerminating(n)
			cancel()
		})
	})
	post.Post(func() {
		delegate.OnServerReady(n)
	})
	n.Run(ctx)
	async.Shutdown()
	gwlog.Infof("server %s terminated gracefully.", self)
	gwlog.Sync()
}
