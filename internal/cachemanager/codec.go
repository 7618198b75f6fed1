package cachemanager

import (
	"reflect"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// envelope is the wire form of a value in the cluster tier.
type envelope struct {
	Type    string             `msgpack:"t,omitempty"`
	Created int64              `msgpack:"c"`
	Data    msgpack.RawMessage `msgpack:"d"`
}

var registry = struct {
	sync.RWMutex
	byName map[string]reflect.Type
	byType map[reflect.Type]string
}{
	byName: make(map[string]reflect.Type),
	byType: make(map[reflect.Type]string),
}

// RegisterType makes values of sample's dynamic type survive a round trip
// through clustered caches. Unregistered values decode into generic msgpack
// types (maps, slices, numbers, strings).
func RegisterType(name string, sample any) {
	t := reflect.TypeOf(sample)
	if t == nil {
		panic("cachemanager: RegisterType of nil")
	}

	registry.Lock()
	defer registry.Unlock()

	if prev, ok := registry.byName[name]; ok && prev != t {
		panic("cachemanager: type name " + name + " registered twice")
	}
	registry.byName[name] = t
	registry.byType[t] = name
}

func encodeValue(v any, created time.Time) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "msgpack.Marshal value")
	}

	env := envelope{Created: created.UnixMilli(), Data: data}
	if t := reflect.TypeOf(v); t != nil {
		registry.RLock()
		env.Type = registry.byType[t]
		registry.RUnlock()
	}

	out, err := msgpack.Marshal(&env)
	if err != nil {
		return nil, errors.Wrap(err, "msgpack.Marshal envelope")
	}
	return out, nil
}

func decodeValue(b []byte) (any, time.Time, error) {
	var env envelope
	if err := msgpack.Unmarshal(b, &env); err != nil {
		return nil, time.Time{}, errors.Wrap(err, "msgpack.Unmarshal envelope")
	}
	created := time.UnixMilli(env.Created)

	if env.Type == "" {
		var v any
		if err := msgpack.Unmarshal(env.Data, &v); err != nil {
			return nil, created, errors.Wrap(err, "msgpack.Unmarshal value")
		}
		return v, created, nil
	}

	registry.RLock()
	t, ok := registry.byName[env.Type]
	registry.RUnlock()
	if !ok {
		return nil, created, errors.Errorf("unregistered cache value type %q", env.Type)
	}

	if t.Kind() == reflect.Pointer {
		ptr := reflect.New(t.Elem())
		if err := msgpack.Unmarshal(env.Data, ptr.Interface()); err != nil {
			return nil, created, errors.Wrapf(err, "msgpack.Unmarshal %s", env.Type)
		}
		return ptr.Interface(), created, nil
	}

	ptr := reflect.New(t)
	if err := msgpack.Unmarshal(env.Data, ptr.Interface()); err != nil {
		return nil, created, errors.Wrapf(err, "msgpack.Unmarshal %s", env.Type)
	}
	return ptr.Elem().Interface(), created, nil
}

// encodedSize estimates the footprint of a value by its serialized length.
func encodedSize(v any) int64 {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return 0
	}
	return int64(len(data))
}

// Nested carries a value inside another cached value, such as the payload of
// a strategy entry, so its registered type survives the cluster tier too.
type Nested struct {
	Value any
}

func (n Nested) EncodeMsgpack(enc *msgpack.Encoder) error {
	b, err := encodeValue(n.Value, time.Time{})
	if err != nil {
		return err
	}
	return enc.EncodeBytes(b)
}

func (n *Nested) DecodeMsgpack(dec *msgpack.Decoder) error {
	b, err := dec.DecodeBytes()
	if err != nil {
		return errors.Wrap(err, "decode nested value")
	}
	v, _, err := decodeValue(b)
	if err != nil {
		return err
	}
	n.Value = v
	return nil
}
