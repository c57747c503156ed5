package consts

import "time"

// Tunable Options
const (
	// For Underlying Networking
	// BUFFERED_READ_BUFFSIZE is the read buffer size for buffered connections
	BUFFERED_READ_BUFFSIZE = 16384
	// BUFFERED_WRITE_BUFFSIZE is the write buffer size for buffered connections
	BUFFERED_WRITE_BUFFSIZE = 16384
	// PEER_CONN_WRITE_BUFFER_SIZE is the socket write buffer size for peer connections
	PEER_CONN_WRITE_BUFFER_SIZE = 1024 * 1024
	// PEER_CONN_READ_BUFFER_SIZE is the socket read buffer size for peer connections
	PEER_CONN_READ_BUFFER_SIZE = 1024 * 1024
	// PEER_CONN_SET_TCP_NO_DELAY = true sets peer connections to TcpNoDelay
	PEER_CONN_SET_TCP_NO_DELAY = true
	// CONNECTION_FLUSH_INTERVAL is the interval to flush buffered connection writes
	CONNECTION_FLUSH_INTERVAL = time.Millisecond * 5

	// For Tick Loop
	// RECV_PACKET_QUEUE_SIZE is the max number of received packets waiting for the tick goroutine
	RECV_PACKET_QUEUE_SIZE = 10000
	// DEFAULT_TICK_INTERVAL is the default interval of the tick loop
	DEFAULT_TICK_INTERVAL = time.Millisecond * 20

	// For Async Jobs
	// ASYNC_JOB_QUEUE_MAXLEN is the max number of queued jobs per async job group
	ASYNC_JOB_QUEUE_MAXLEN = 10000

	// For Replication
	// DEFAULT_PENDING_SERIALIZE_TIMEOUT is how long serialize messages for unconstructed entities are kept
	DEFAULT_PENDING_SERIALIZE_TIMEOUT = time.Second * 5
	// DEFAULT_MAX_PENDING_SERIALIZE is the max number of buffered serialize messages per entity
	DEFAULT_MAX_PENDING_SERIALIZE = 64

	// For Tick Priorities
	// TICK_PRIORITY_OBJECTS ticks the object manager (deferred destruction)
	TICK_PRIORITY_OBJECTS = 0
	// TICK_PRIORITY_PLUGINS ticks plugins
	TICK_PRIORITY_PLUGINS = 100
	// TICK_PRIORITY_REPLICA flushes and sends dirty transactions
	TICK_PRIORITY_REPLICA = 1000

	// For Plugins
	// DEFAULT_STATS_INTERVAL is the default sampling interval of the server stats plugin
	DEFAULT_STATS_INTERVAL = time.Second * 5

	// For Operation Monitor
	// OPMON_DUMP_INTERVAL is the interval to print opmon infos to output
	OPMON_DUMP_INTERVAL = 0
)

// Debug Options
const (
	// DEBUG_PACKETS prints packet send/recv debug logs
	DEBUG_PACKETS = false
	// DEBUG_REPLICA prints replica state transition debug logs
	DEBUG_REPLICA = false
	// DEBUG_PROPSYNC prints property flush/apply debug logs
	DEBUG_PROPSYNC = false
	// DEBUG_OBJECTS prints object & component creation debug logs
	DEBUG_OBJECTS = false
	// DEBUG_PLUGINS prints plugin debug logs
	DEBUG_PLUGINS = false
	// DEBUG_SAVE_LOAD prints template storage debug logs
	DEBUG_SAVE_LOAD = false
	// DEBUG_PACKET_ALLOC prints packet allocation debug logs
	DEBUG_PACKET_ALLOC = false
)
