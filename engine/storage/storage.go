// Package storage runs template storage operations on a dedicated goroutine
//
// Asynchronous operations post their callbacks to the tick goroutine.
package storage

import (
	"strconv"
	"time"

	"github.com/goreplica/goreplica/engine/config"
	"github.com/goreplica/goreplica/engine/consts"
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/goreplica/goreplica/engine/opmon"
	"github.com/goreplica/goreplica/engine/post"
	"github.com/goreplica/goreplica/engine/storage/backend/filesystem"
	"github.com/goreplica/goreplica/engine/storage/backend/mongodb"
	"github.com/goreplica/goreplica/engine/storage/backend/redis"
	"github.com/goreplica/goreplica/engine/storage/backend/redis_cluster"
	"github.com/goreplica/goreplica/engine/storage/storage_common"
	"github.com/goreplica/goreplica/engine/template"
	"github.com/pkg/errors"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
)

var (
	storageEngine            storagecommon.TemplateStorage
	storageConfig            *config.StorageConfig
	operationQueue           *xnsyncutil.SyncQueue
	storageRoutineTerminated *xnsyncutil.OneTimeCond
)

type saveRequest struct {
	Template *template.ObjectTemplate
	Callback SaveCallbackFunc
}

type loadRequest struct {
	Name     string
	Callback LoadCallbackFunc
	Direct   bool // call back on the storage goroutine instead of posting
}

type existsRequest struct {
	Name     string
	Callback ExistsCallbackFunc
}

type listRequest struct {
	Callback ListCallbackFunc
}

// SaveCallbackFunc is the callback type of storage Save
type SaveCallbackFunc func(err error)

// LoadCallbackFunc is the callback type of storage Load
type LoadCallbackFunc func(t *template.ObjectTemplate, err error)

// ExistsCallbackFunc is the callback type of storage Exists
type ExistsCallbackFunc func(exists bool, err error)

// ListCallbackFunc is the callback type of storage List
type ListCallbackFunc func(names []string, err error)

// Save saves a template to storage
func Save(t *template.ObjectTemplate, callback SaveCallbackFunc) {
	push(saveRequest{
		Template: t,
		Callback: callback,
	})
}

// Load loads a template from storage
func Load(name string, callback LoadCallbackFunc) {
	push(loadRequest{
		Name:     name,
		Callback: callback,
	})
}

// Exists checks if a template exists in storage
func Exists(name string, callback ExistsCallbackFunc) {
	push(existsRequest{
		Name:     name,
		Callback: callback,
	})
}

// List returns all template names in storage
func List(callback ListCallbackFunc) {
	push(listRequest{
		Callback: callback,
	})
}

// ReadTemplate loads a template and blocks until it is read
//
// Used on cache misses of the template store, so templates are available at creation time.
func ReadTemplate(name string) (*template.ObjectTemplate, error) {
	if operationQueue == nil {
		return nil, errors.New("storage is not initialized")
	}
	type result struct {
		t   *template.ObjectTemplate
		err error
	}
	ch := make(chan result, 1)
	push(loadRequest{
		Name: name,
		Callback: func(t *template.ObjectTemplate, err error) {
			ch <- result{t, err}
		},
		Direct: true,
	})
	res := <-ch
	return res.t, res.err
}

// Reader adapts the storage goroutine to template.Reader
type Reader struct{}

// ReadTemplate implements template.Reader
func (Reader) ReadTemplate(name string) (*template.ObjectTemplate, error) {
	return ReadTemplate(name)
}

func push(op interface{}) {
	if operationQueue == nil {
		gwlog.Panicf("storage is not initialized")
	}
	operationQueue.Push(op)
	checkOperationQueueLen()
}

var recentWarnedQueueLen = 0

func checkOperationQueueLen() {
	qlen := operationQueue.Len()
	if qlen > 100 && qlen%100 == 0 && recentWarnedQueueLen != qlen {
		gwlog.Warnf("Storage operation queue length = %d", qlen)
		recentWarnedQueueLen = qlen
	}
}

// Shutdown storage module
func Shutdown() {
	if operationQueue == nil {
		return
	}
	operationQueue.Close()
	storageRoutineTerminated.Wait()
	operationQueue = nil
}

// Initialize opens the configured storage backend and starts the storage goroutine
func Initialize(cfg *config.StorageConfig) error {
	storageConfig = cfg
	storageEngine = nil
	if err := assureStorageEngineReady(); err != nil {
		return errors.Wrap(err, "storage engine is not ready")
	}
	operationQueue = xnsyncutil.NewSyncQueue()
	storageRoutineTerminated = xnsyncutil.NewOneTimeCond()
	go storageRoutine(operationQueue, storageRoutineTerminated)
	return nil
}

func assureStorageEngineReady() (err error) {
	if storageEngine != nil {
		return
	}

	cfg := storageConfig
	switch cfg.Type {
	case "filesystem":
		storageEngine, err = templatestoragefilesystem.OpenDirectory(cfg.Directory)
	case "mongodb":
		storageEngine, err = templatestoragemongodb.OpenMongoDB(cfg.Url, cfg.DB)
	case "redis":
		var dbindex int
		if dbindex, err = strconv.Atoi(cfg.DB); err == nil {
			storageEngine, err = templatestorageredis.OpenRedis(cfg.Url, dbindex)
		}
	case "redis_cluster":
		storageEngine, err = templatestoragerediscluster.OpenRedisCluster(cfg.StartNodes.ToList())
	default:
		gwlog.Panicf("unknown storage type: %s", cfg.Type)
	}
	return
}

func storageRoutine(queue *xnsyncutil.SyncQueue, terminated *xnsyncutil.OneTimeCond) {
	defer func() {
		err := recover()
		if err != nil {
			gwlog.TraceError("storage routine paniced: %s, restarting ...", err)
			go storageRoutine(queue, terminated) // restart the storage routine
		} else {
			// normal quit
			if storageEngine != nil {
				storageEngine.Close()
				storageEngine = nil
			}
			terminated.Signal()
		}
	}()

	for {
		op := queue.Pop()
		if op == nil { // storage closed
			break
		}

		for {
			err := assureStorageEngineReady()
			if err == nil {
				break
			}
			gwlog.Errorf("Storage engine is not ready: %s", err)
			time.Sleep(time.Second)
		}

		var err error
		switch req := op.(type) {
		case saveRequest:
			err = handleSave(req)
		case loadRequest:
			err = handleLoad(req)
		case existsRequest:
			monop := opmon.StartOperation("storage.exists")
			var exists bool
			exists, err = storageEngine.Exists(req.Name)
			monop.Finish(time.Millisecond * 100)
			if req.Callback != nil {
				post.Post(func() {
					req.Callback(exists, err)
				})
			}
		case listRequest:
			monop := opmon.StartOperation("storage.list")
			var names []string
			names, err = storageEngine.List()
			if err != nil {
				gwlog.TraceError("storage: list templates failed: %s", err)
			}
			monop.Finish(time.Millisecond * 1000)
			if req.Callback != nil {
				post.Post(func() {
					req.Callback(names, err)
				})
			}
		default:
			gwlog.Panicf("storage: unknown operation: %v", op)
		}

		if err != nil && storageEngine.IsEOF(err) {
			storageEngine.Close()
			storageEngine = nil
		}
	}
}

func handleSave(req saveRequest) error {
	if consts.DEBUG_SAVE_LOAD {
		gwlog.Debugf("storage: SAVING %s ...", req.Template.Name)
	}
	monop := opmon.StartOperation("storage.save")
	err := storageEngine.Write(req.Template)
	if err != nil {
		gwlog.Errorf("storage: save %s failed: %s", req.Template.Name, err)
	}
	monop.Finish(time.Millisecond * 100)
	if req.Callback != nil {
		post.Post(func() {
			req.Callback(err)
		})
	}
	return err
}

func handleLoad(req loadRequest) error {
	if consts.DEBUG_SAVE_LOAD {
		gwlog.Debugf("storage: LOADING %s ...", req.Name)
	}
	monop := opmon.StartOperation("storage.load")
	t, err := storageEngine.Read(req.Name)
	if err != nil {
		gwlog.Warnf("storage: load %s failed: %s", req.Name, err)
		t = nil
	}
	monop.Finish(time.Millisecond * 100)
	if req.Callback != nil {
		if req.Direct {
			req.Callback(t, err)
		} else {
			post.Post(func() {
				req.Callback(t, err)
			})
		}
	}
	return err
}
