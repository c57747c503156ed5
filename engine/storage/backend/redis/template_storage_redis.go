package templatestorageredis

import (
	"io"
	"sort"

	"github.com/garyburd/redigo/redis"
	"github.com/goreplica/goreplica/engine/common"
	"github.com/goreplica/goreplica/engine/netutil"
	"github.com/goreplica/goreplica/engine/storage/storage_common"
	"github.com/goreplica/goreplica/engine/template"
	"github.com/pkg/errors"
)

const keyPrefix = "template$"

var (
	dataPacker = netutil.MessagePackMsgPacker{}
)

type redisTemplateStorage struct {
	c redis.Conn
}

// OpenRedis opens redis as template storage
func OpenRedis(url string, dbindex int) (storagecommon.TemplateStorage, error) {
	c, err := redis.DialURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "redis dail failed")
	}

	if _, err := c.Do("SELECT", dbindex); err != nil {
		c.Close()
		return nil, errors.Wrap(err, "redis select db failed")
	}

	return &redisTemplateStorage{
		c: c,
	}, nil
}

func templateKey(name string) string {
	return keyPrefix + name
}

// PackTemplate packs a template record in MessagePack format
func PackTemplate(t *template.ObjectTemplate) ([]byte, error) {
	return dataPacker.PackMsg(t, nil)
}

// UnpackTemplate unpacks a template record packed by PackTemplate
func UnpackTemplate(name string, b []byte) (*template.ObjectTemplate, error) {
	var t template.ObjectTemplate
	if err := dataPacker.UnpackMsg(b, &t); err != nil {
		return nil, errors.Wrapf(common.ErrDecodeFailure, "template %s: %v", name, err)
	}
	if t.Name == "" {
		t.Name = name
	}
	return &t, nil
}

func (ts *redisTemplateStorage) List() ([]string, error) {
	keyMatch := keyPrefix + "*"
	r, err := redis.Values(ts.c.Do("SCAN", "0", "MATCH", keyMatch, "COUNT", 10000))
	if err != nil {
		return nil, err
	}
	var names []string
	for {
		nextCursor := r[0]
		keys, err := redis.Strings(r[1], nil)
		if err != nil {
			return nil, err
		}

		for _, key := range keys {
			names = append(names, key[len(keyPrefix):])
		}

		if isZeroCursor(nextCursor) {
			break
		}
		r, err = redis.Values(ts.c.Do("SCAN", nextCursor, "MATCH", keyMatch, "COUNT", 10000))
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(names)
	return names, nil
}

func isZeroCursor(c interface{}) bool {
	return string(c.([]byte)) == "0"
}

func (ts *redisTemplateStorage) Write(t *template.ObjectTemplate) error {
	b, err := PackTemplate(t)
	if err != nil {
		return err
	}

	_, err = ts.c.Do("SET", templateKey(t.Name), b)
	return err
}

func (ts *redisTemplateStorage) Read(name string) (*template.ObjectTemplate, error) {
	b, err := redis.Bytes(ts.c.Do("GET", templateKey(name)))
	if err == redis.ErrNil {
		return nil, errors.Wrapf(common.ErrNotFound, "template %s", name)
	} else if err != nil {
		return nil, err
	}
	return UnpackTemplate(name, b)
}

func (ts *redisTemplateStorage) Exists(name string) (bool, error) {
	return redis.Bool(ts.c.Do("EXISTS", templateKey(name)))
}

func (ts *redisTemplateStorage) Close() {
	ts.c.Close()
}

func (ts *redisTemplateStorage) IsEOF(err error) bool {
	return err == io.EOF || err == io.ErrUnexpectedEOF
}
