// Package client runs a replication client connected to one server, or an offline client when
// the config says so.
package client

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/goreplica/goreplica/engine/binutil"
	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/config"
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/goreplica/goreplica/engine/node"
	"github.com/goreplica/goreplica/engine/object"
	"github.com/goreplica/goreplica/engine/post"
	"github.com/goreplica/goreplica/engine/proto"
	"github.com/goreplica/goreplica/engine/replica"
	"github.com/goreplica/goreplica/engine/storage"
	"github.com/goreplica/goreplica/engine/template"
	"github.com/goreplica/goreplica/engine/transport"
	"github.com/xiaonanln/goTimer"
)

const (
	reconnectInterval = time.Second * 3
)

var args struct {
	peerID     string
	configFile string
	logLevel   string
	serverAddr string
}

func parseArgs() {
	flag.StringVar(&args.peerID, "id", "", "set peer id, generated if empty")
	flag.StringVar(&args.configFile, "configfile", "", "set config file path")
	flag.StringVar(&args.logLevel, "log", "", "set log level, will override log level in config")
	flag.StringVar(&args.serverAddr, "server", "", "set server address, will override server_addr in config")
	flag.Parse()
}

// IClientDelegate receives client lifecycle callbacks on the tick goroutine
type IClientDelegate interface {
	OnClientReady(n *node.Node)
	OnServerConnected(n *node.Node, server common.PeerID)
	OnServerDisconnected(n *node.Node, server common.PeerID)
}

// ClientDelegate is the default IClientDelegate
type ClientDelegate struct {
}

// OnClientReady is called once the node is created
func (cd *ClientDelegate) OnClientReady(n *node.Node) {
	gwlog.Infof("%s is ready.", n)
}

// OnServerConnected is called when the server is connected
func (cd *ClientDelegate) OnServerConnected(n *node.Node, server common.PeerID) {
	gwlog.Infof("%s connected to server %s", n, server)
}

// OnServerDisconnected is called when the server connection is lost, a reconnect is scheduled
func (cd *ClientDelegate) OnServerDisconnected(n *node.Node, server common.PeerID) {
	gwlog.Infof("%s disconnected from server %s", n, server)
}

// connector keeps the client connected to its server
type connector struct {
	ctx      context.Context
	n        *node.Node
	client   *transport.NetworkClient
	delegate IClientDelegate
}

func (c *connector) connect() {
	go func() {
		err := c.client.Connect()
		if err == nil {
			return
		}
		gwlog.Warnf("%s, retry in %s", err, reconnectInterval)
		post.Post(func() {
			if c.ctx.Err() == nil {
				timer.AddCallback(reconnectInterval, c.connect)
			}
		})
	}()
}

func (c *connector) OnPeerConnected(conn *replica.Connection) {
	c.delegate.OnServerConnected(c.n, conn.Peer())
}

func (c *connector) OnPeerDisconnected(conn *replica.Connection) {
	c.delegate.OnServerDisconnected(c.n, conn.Peer())
	if c.ctx.Err() == nil {
		timer.AddCallback(reconnectInterval, c.connect)
	}
}

func (c *connector) OnPluginMessage(conn *replica.Connection, msgtype proto.MsgType, msg interface{}) {
}

// Run starts the client and blocks until it is terminated by SIGINT or SIGTERM
func Run(types *object.TypeRegistry, delegate IClientDelegate) {
	rand.Seed(time.Now().UnixNano())
	parseArgs()

	if args.configFile != "" {
		config.SetConfigFile(args.configFile)
	}
	cfg := config.Get()
	if args.serverAddr != "" {
		cfg.Client.ServerAddr = args.serverAddr
	}
	fmt.Fprintf(os.Stderr, "Read client config: \n%s\n", config.DumpPretty(cfg.Client))

	logLevel := args.logLevel
	if logLevel == "" {
		logLevel = cfg.Client.LogLevel
	}
	binutil.SetupGWLog("client", logLevel, cfg.Client.LogFile, cfg.Client.LogStderr)

	var templates object.TemplateSource = template.NewStore(nil)
	if err := storage.Initialize(&cfg.Storage); err != nil {
		gwlog.Warnf("storage is not available, templates are disabled: %v", err)
	} else {
		templates = template.NewStore(storage.Reader{})
		defer storage.Shutdown()
	}

	self := common.PeerID(args.peerID)
	if self.IsNil() {
		self = common.GenPeerID()
	}
	ncfg := node.Config{
		Self:         self,
		Mode:         common.ModeClient,
		Types:        types,
		Templates:    templates,
		TickInterval: cfg.Client.TickInterval,
		Replica:      cfg.Replica,
	}
	var client *transport.NetworkClient
	if !cfg.Client.Offline {
		client = transport.NewNetworkClient(self, transport.ClientConfig{
			ServerAddr:         cfg.Client.ServerAddr,
			Transport:          cfg.Client.Transport,
			CompressConnection: cfg.Client.CompressConnection,
		})
		ncfg.Transport = client
	}
	n := node.New(ncfg)
	if err := n.Start(); err != nil {
		gwlog.Fatalf("start %s failed: %v", n, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if client != nil {
		c := &connector{ctx: ctx, n: n, client: client, delegate: delegate}
		n.Replica().AddPeerListener(c)
		c.connect()
	} else {
		gwlog.Infof("%s runs offline", n)
	}

	binutil.SetupSignals(func() {
		post.Post(func() {
			cancel()
		})
	})
	post.Post(func() {
		delegate.OnClientReady(n)
	})
	n.Run(ctx)
	gwlog.Infof("client %s terminated gracefully.", self)
	gwlog.Sync()
}
