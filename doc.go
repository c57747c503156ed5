/*
GoReplica replicates objects between a server and its clients. An Object is a named, networked
container of Components; Components hold reflected properties. Property changes are collected
per tick into transactions and sent to every peer that holds a replica.

Peers

A server accepts clients over TCP, KCP or WebSocket. Every entity has one authoritative owner:
the server, or the client that created it. Clients replicate what they own to the server, the
server relays it to the other clients and replicates its own entities to everyone.

Package goreplica

goreplica package exports the APIs used by server and client programs. A common server program
looks like bellow:

	import "github.com/goreplica/goreplica"

	func main() {
		goreplica.RegisterComponent(0x10, "Health", &Health{})
		goreplica.RunServer(&goreplica.ServerDelegate{})
	}

Plugins

Servers host plugins that are replicated to every client: PermissionManager authorizes client
requests, ResourceManager publishes the resource location, ServerNeighbors lists the neighbor
servers and ServerStats publishes load figures.
*/
package goreplica
