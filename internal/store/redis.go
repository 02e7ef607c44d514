// internal/store/redis.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on a Redis backend. Each document is a hash
// whose fields hold JSON-encoded values, so Update maps directly onto HSET
// merge semantics. Every committed write publishes a tick on a per-key
// channel; subscribers re-read the hash on each tick.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// appendScript appends ARGV[2] (a JSON value) to the JSON array stored in
// hash field ARGV[1], skipping the append when an equal element is already
// present. The array is spliced as text to keep the stored encoding stable.
var appendScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if not cur or cur == '' or cur == 'null' then
  redis.call('HSET', KEYS[1], ARGV[1], '['..ARGV[2]..']')
  redis.call('PUBLISH', KEYS[2], '1')
  return 1
end
local arr = cjson.decode(cur)
for i = 1, #arr do
  if cjson.encode(arr[i]) == ARGV[2] then
    return 0
  end
end
if #arr == 0 then
  redis.call('HSET', KEYS[1], ARGV[1], '['..ARGV[2]..']')
else
  local body = string.sub(cur, 1, #cur - 1)
  redis.call('HSET', KEYS[1], ARGV[1], body..','..ARGV[2]..']')
end
redis.call('PUBLISH', KEYS[2], '1')
return 1
`)

// removeScript removes the first element of the JSON array in hash field
// ARGV[1] whose cjson re-encoding equals ARGV[2], and returns the remaining
// element count. cjson encodes an empty table as an object, hence the
// explicit '[]'.
var removeScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if not cur or cur == '' or cur == 'null' then
  return 0
end
local arr = cjson.decode(cur)
for i = 1, #arr do
  if cjson.encode(arr[i]) == ARGV[2] then
    table.remove(arr, i)
    if #arr == 0 then
      redis.call('HSET', KEYS[1], ARGV[1], '[]')
    else
      redis.call('HSET', KEYS[1], ARGV[1], cjson.encode(arr))
    end
    redis.call('PUBLISH', KEYS[2], '1')
    return #arr
  end
end
return #arr
`)

// claimScript writes ARGV[2] into hash field ARGV[1] only when the field is
// missing, JSON null, or the empty string.
var claimScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if cur and cur ~= '' and cur ~= 'null' and cur ~= '""' then
  return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('PUBLISH', KEYS[2], '1')
return 1
`)

// NewRedisStore wraps an existing client. All keys are namespaced under
// "duel:".
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "duel:"}
}

// ConnectRedis builds a RedisStore from environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
func ConnectRedis() (*RedisStore, error) {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return NewRedisStore(client), nil
}

func (s *RedisStore) docKey(key string) string  { return s.prefix + key }
func (s *RedisStore) chanKey(key string) string { return s.prefix + "ch:" + key }

func (s *RedisStore) Get(ctx context.Context, key string) (Document, error) {
	fields, err := s.client.HGetAll(ctx, s.docKey(key)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	doc := make(Document, len(fields))
	for k, v := range fields {
		doc[k] = json.RawMessage(v)
	}
	return doc, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, fields map[string]interface{}) error {
	doc, err := encodeFields(fields)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.docKey(key))
	pipe.HSet(ctx, s.docKey(key), rawArgs(doc)...)
	pipe.Publish(ctx, s.chanKey(key), "1")
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Update(ctx context.Context, key string, fields map[string]interface{}) error {
	doc, err := encodeFields(fields)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.docKey(key), rawArgs(doc)...)
	pipe.Publish(ctx, s.chanKey(key), "1")
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) AppendAtomic(ctx context.Context, key, field string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	keys := []string{s.docKey(key), s.chanKey(key)}
	return appendScript.Run(ctx, s.client, keys, field, string(data)).Err()
}

func (s *RedisStore) RemoveAtomic(ctx context.Context, key, field string, value interface{}) (int, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return 0, err
	}
	keys := []string{s.docKey(key), s.chanKey(key)}
	n, err := removeScript.Run(ctx, s.client, keys, field, string(data)).Int64()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *RedisStore) SetIfAbsent(ctx context.Context, key, field string, value interface{}) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	keys := []string{s.docKey(key), s.chanKey(key)}
	n, err := claimScript.Run(ctx, s.client, keys, field, string(data)).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisStore) Subscribe(ctx context.Context, key string, onChange func(Document), onError func(error)) (func(), error) {
	sub := s.client.Subscribe(ctx, s.chanKey(key))
	// Force the subscription to be established before returning so callers
	// never miss a write issued right after Subscribe.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	go func() {
		for range sub.Channel() {
			doc, err := s.Get(context.Background(), key)
			if err != nil {
				if err == ErrNotFound {
					continue // no session yet
				}
				if onError != nil {
					onError(err)
				}
				continue
			}
			onChange(doc)
		}
	}()

	unsubscribe := func() {
		_ = sub.Close()
	}
	return unsubscribe, nil
}

// rawArgs flattens a document into the alternating field/value form HSET
// expects.
func rawArgs(doc Document) []interface{} {
	args := make([]interface{}, 0, len(doc)*2)
	for k, v := range doc {
		args = append(args, k, string(v))
	}
	return args
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
