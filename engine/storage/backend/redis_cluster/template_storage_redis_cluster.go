package templatestoragerediscluster

import (
	"io"
	"sort"
	"time"

	rediscluster "github.com/chasex/redis-go-cluster"
	"github.com/garyburd/redigo/redis"
	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/storage/backend/redis"
	"github.com/goreplica/goreplica/engine/storage/storage_common"
	"github.com/goreplica/goreplica/engine/template"
	"github.com/pkg/errors"
)

const (
	// all template keys share one hash slot so that they can be listed from a single node
	keyPrefix = "{template}$"
	indexKey  = "{template}$$index"
)

var _ storagecommon.TemplateStorage = (*redisClusterTemplateStorage)(nil)

type redisClusterTemplateStorage struct {
	c rediscluster.Cluster
}

// OpenRedisCluster opens redis cluster as template storage
func OpenRedisCluster(startNodes []string) (storagecommon.TemplateStorage, error) {
	c, err := rediscluster.NewCluster(&rediscluster.Options{
		StartNodes:   startNodes,
		ConnTimeout:  10 * time.Second, // Connection timeout
		ReadTimeout:  60 * time.Second, // Read timeout
		WriteTimeout: 60 * time.Second, // Write timeout
		KeepAlive:    1,                // Maximum keep alive connecion in each node
		AliveTime:    10 * time.Minute, // Keep alive timeout
	})

	if err != nil {
		return nil, errors.Wrap(err, "connect redis cluster failed")
	}

	return &redisClusterTemplateStorage{
		c: c,
	}, nil
}

func templateKey(name string) string {
	return keyPrefix + name
}

func (ts *redisClusterTemplateStorage) List() ([]string, error) {
	names, err := redis.Strings(ts.c.Do("SMEMBERS", indexKey))
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (ts *redisClusterTemplateStorage) Write(t *template.ObjectTemplate) error {
	b, err := templatestorageredis.PackTemplate(t)
	if err != nil {
		return err
	}

	if _, err = ts.c.Do("SET", templateKey(t.Name), b); err != nil {
		return err
	}
	_, err = ts.c.Do("SADD", indexKey, t.Name)
	return err
}

func (ts *redisClusterTemplateStorage) Read(name string) (*template.ObjectTemplate, error) {
	reply, err := ts.c.Do("GET", templateKey(name))
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, errors.Wrapf(common.ErrNotFound, "template %s", name)
	}
	b, err := redis.Bytes(reply, nil)
	if err != nil {
		return nil, err
	}
	return templatestorageredis.UnpackTemplate(name, b)
}

func (ts *redisClusterTemplateStorage) Exists(name string) (bool, error) {
	return redis.Bool(ts.c.Do("EXISTS", templateKey(name)))
}

// Close is a no-op, the cluster client keeps no closable handle
func (ts *redisClusterTemplateStorage) Close() {
}

func (ts *redisClusterTemplateStorage) IsEOF(err error) bool {
	return err == io.EOF || err == io.ErrUnexpectedEOF
}
