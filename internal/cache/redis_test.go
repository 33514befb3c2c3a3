package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRedisStore(t *testing.T, ns string) (*RedisStore, redismock.ClientMock) {
	t.Helper()
	client, mock := redismock.NewClientMock()
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisFromClient(client, ns), mock
}

func TestRedisStore_GetHit(t *testing.T) {
	s, mock := newMockRedisStore(t, "cs:")
	mock.ExpectGet("cs:search:abc").SetVal(`{"a":1}`)

	got, ok, err := s.Get(context.Background(), "search:abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(got))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_GetMiss(t *testing.T) {
	s, mock := newMockRedisStore(t, "")
	mock.ExpectGet("search:abc").RedisNil()

	got, ok, err := s.Get(context.Background(), "search:abc")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_GetError(t *testing.T) {
	s, mock := newMockRedisStore(t, "")
	mock.ExpectGet("k").SetErr(errors.New("connection refused"))

	_, ok, err := s.Get(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "redis: get")
}

func TestRedisStore_SetUsesNativeTTL(t *testing.T) {
	s, mock := newMockRedisStore(t, "cs:")
	mock.ExpectSet("cs:summary:acme.com", []byte("v"), 24*time.Hour).SetVal("OK")

	err := s.Set(context.Background(), "summary:acme.com", []byte("v"), 24*time.Hour)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_Delete(t *testing.T) {
	s, mock := newMockRedisStore(t, "cs:")
	mock.ExpectDel("cs:k").SetVal(1)

	require.NoError(t, s.Delete(context.Background(), "k"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_ScanPrefix(t *testing.T) {
	s, mock := newMockRedisStore(t, "cs:")
	mock.ExpectScan(0, "cs:summary:*", redisScanCount).SetVal([]string{"cs:summary:b.com"}, 7)
	mock.ExpectScan(7, "cs:summary:*", redisScanCount).SetVal([]string{"cs:summary:a.com", "cs:summary:b.com"}, 0)
	mock.ExpectMGet("cs:summary:a.com", "cs:summary:b.com").SetVal([]interface{}{"A", nil})

	vals, err := s.ScanPrefix(context.Background(), "summary:")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("A")}, vals, "keys expired between SCAN and MGET are skipped")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_ScanPrefixEmpty(t *testing.T) {
	s, mock := newMockRedisStore(t, "")
	mock.ExpectScan(0, "similar:*", redisScanCount).SetVal([]string{}, 0)

	vals, err := s.ScanPrefix(context.Background(), "similar:")
	require.NoError(t, err)
	assert.Empty(t, vals)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_Clear(t *testing.T) {
	s, mock := newMockRedisStore(t, "cs:")
	mock.ExpectScan(0, "cs:*", redisScanCount).SetVal([]string{"cs:a", "cs:b"}, 0)
	mock.ExpectDel("cs:a", "cs:b").SetVal(2)

	require.NoError(t, s.Clear(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGlobEscape(t *testing.T) {
	assert.Equal(t, `summary:a\*b\?\[c\]`, globEscape("summary:a*b?[c]"))
	assert.Equal(t, `x\\y`, globEscape(`x\y`))
}
