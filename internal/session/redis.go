package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spigell/interview-scorer/internal/apperr"
)

// RedisConfig describes the connection to the session store.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key-prefix"`
}

// NewRedisClient connects and pings the server.
func NewRedisClient(ctx context.Context, cfg RedisConfig, log *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}

	if log != nil {
		log.Info("connected to redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	}

	return client, nil
}

const (
	fieldEmail       = "email"
	fieldInterviewID = "interview_id"
	fieldDomain      = "domain"
	fieldCurrent     = "current_question"
)

// All scripts take KEYS = {hash, results list, answered set} and
// ARGV[1..3] = email, interview_id, domain, creating the hash when missing.
const ensureLua = `
if redis.call('EXISTS', KEYS[1]) == 0 then
  redis.call('HSET', KEYS[1], 'email', ARGV[1], 'interview_id', ARGV[2], 'domain', ARGV[3], 'current_question', 0)
end
`

var (
	createScript = redis.NewScript(ensureLua + `
return 1
`)

	// ARGV[4] = total questions. Returns the claimed index or -1 when exhausted.
	advanceScript = redis.NewScript(ensureLua + `
local current = tonumber(redis.call('HGET', KEYS[1], 'current_question') or '0')
if current >= tonumber(ARGV[4]) then
  return -1
end
redis.call('HINCRBY', KEYS[1], 'current_question', 1)
return current
`)

	// ARGV[4] = question id, ARGV[5] = encoded result. Returns 1 when appended.
	appendScript = redis.NewScript(ensureLua + `
if redis.call('SADD', KEYS[3], ARGV[4]) == 0 then
  return 0
end
redis.call('RPUSH', KEYS[2], ARGV[5])
return 1
`)

	resetScript = redis.NewScript(ensureLua + `
redis.call('HSET', KEYS[1], 'current_question', 0)
redis.call('DEL', KEYS[2], KEYS[3])
return 1
`)
)

// RedisStore keeps sessions in Redis. Each session is a hash holding the
// identity and current index, a list of encoded results, and a set of answered
// question ids. Mutations run as Lua scripts so each is atomic per key.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "interview-scorer"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) keys(key Key) []string {
	base := s.prefix + ":session:" + key.String()
	return []string{base, base + ":results", base + ":answered"}
}

func identity(key Key) []any {
	return []any{key.Email, key.InterviewID, key.Domain}
}

func (s *RedisStore) GetOrCreate(ctx context.Context, key Key) (Record, error) {
	if err := createScript.Run(ctx, s.client, s.keys(key), identity(key)...).Err(); err != nil {
		return Record{}, apperr.Store("create session", err)
	}
	return s.Get(ctx, key)
}

func (s *RedisStore) Get(ctx context.Context, key Key) (Record, error) {
	keys := s.keys(key)

	var (
		hash    *redis.MapStringStringCmd
		results *redis.StringSliceCmd
	)
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		hash = pipe.HGetAll(ctx, keys[0])
		results = pipe.LRange(ctx, keys[1], 0, -1)
		return nil
	})
	if err != nil {
		return Record{}, apperr.Store("load session", err)
	}

	fields := hash.Val()
	if len(fields) == 0 {
		return Record{}, apperr.NotFound("session %s", key)
	}

	record := newRecord(key)
	if v, ok := fields[fieldCurrent]; ok {
		current, err := strconv.Atoi(v)
		if err != nil {
			return Record{}, apperr.Store("load session", fmt.Errorf("corrupt %s %q: %w", fieldCurrent, v, err))
		}
		record.CurrentQuestion = current
	}

	for _, raw := range results.Val() {
		var r Result
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return Record{}, apperr.Store("load session", fmt.Errorf("corrupt result: %w", err))
		}
		record.Results = append(record.Results, r)
	}

	return record, nil
}

func (s *RedisStore) Advance(ctx context.Context, key Key, total int) (int, bool, error) {
	args := append(identity(key), total)
	index, err := advanceScript.Run(ctx, s.client, s.keys(key), args...).Int()
	if err != nil {
		return 0, false, apperr.Store("advance session", err)
	}
	if index < 0 {
		return total, false, nil
	}
	return index, true, nil
}

func (s *RedisStore) AppendResult(ctx context.Context, key Key, r Result) (bool, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return false, fmt.Errorf("encoding result: %w", err)
	}

	args := append(identity(key), r.QuestionID, string(payload))
	appended, err := appendScript.Run(ctx, s.client, s.keys(key), args...).Int()
	if err != nil {
		return false, apperr.Store("append result", err)
	}
	return appended == 1, nil
}

func (s *RedisStore) Reset(ctx context.Context, key Key) error {
	if err := resetScript.Run(ctx, s.client, s.keys(key), identity(key)...).Err(); err != nil {
		return apperr.Store("reset session", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return apperr.Store("ping", err)
	}
	return nil
}
