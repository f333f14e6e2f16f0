//go:build unit

package record_test

import (
	"testing"

	"github.com/hugolhafner/go-connect/offset"
	"github.com/hugolhafner/go-connect/record"
	"github.com/stretchr/testify/require"
)

func TestWithHeader_DoesNotAlias(t *testing.T) {
	base := record.New(map[string]string{"server": "s"}, offset.Offset{"lsn": 1}, "topic", "k", "v")
	base.Headers = make([]record.Header, 0, 4)

	a := base.WithHeader("a", []byte("1"))
	b := base.WithHeader("b", []byte("2"))

	require.Empty(t, base.Headers)
	require.Equal(t, []record.Header{{Key: "a", Value: []byte("1")}}, a.Headers)
	require.Equal(t, []record.Header{{Key: "b", Value: []byte("2")}}, b.Headers)
}

func TestLast(t *testing.T) {
	require.Nil(t, record.Last(nil))

	batch := []record.SourceRecord{
		{Offset: offset.Offset{"lsn": 1}},
		{Offset: offset.Offset{"lsn": 2}},
	}
	require.Equal(t, offset.Offset{"lsn": 2}, record.Last(batch))
}
