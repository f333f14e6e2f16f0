// Package partition models the logical databases a task captures changes from.
package partition

import (
	"encoding/json"
	"errors"
)

const (
	ServerKey   = "server"
	DatabaseKey = "database"
)

var (
	ErrEmptyServerName   = errors.New("partition: server name must not be empty")
	ErrEmptyDatabaseName = errors.New("partition: database name must not be empty")
)

// Partition identifies one database on one logical server.
type Partition struct {
	serverName   string
	databaseName string
}

func New(serverName, databaseName string) (Partition, error) {
	if serverName == "" {
		return Partition{}, ErrEmptyServerName
	}
	if databaseName == "" {
		return Partition{}, ErrEmptyDatabaseName
	}

	return Partition{
		serverName:   serverName,
		databaseName: databaseName,
	}, nil
}

func (p Partition) ServerName() string {
	return p.serverName
}

func (p Partition) DatabaseName() string {
	return p.databaseName
}

// SourcePartition returns the identity map the host framework stores
// offsets under. A fresh map is returned on every call.
func (p Partition) SourcePartition() map[string]string {
	return map[string]string{
		ServerKey:   p.serverName,
		DatabaseKey: p.databaseName,
	}
}

// Key returns the stable string form of the source partition.
func (p Partition) Key() string {
	return Key(p.SourcePartition())
}

func (p Partition) String() string {
	return p.serverName + "/" + p.databaseName
}

// Key encodes a source partition map as JSON with sorted keys, so equal maps
// always produce the same key.
func Key(sourcePartition map[string]string) string {
	if sourcePartition == nil {
		sourcePartition = map[string]string{}
	}

	// encoding/json sorts map keys
	b, _ := json.Marshal(sourcePartition)
	return string(b)
}

// ParseKey is the inverse of Key.
func ParseKey(key string) (map[string]string, error) {
	out := make(map[string]string)
	if err := json.Unmarshal([]byte(key), &out); err != nil {
		return nil, err
	}
	return out, nil
}
