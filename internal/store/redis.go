package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kode4food/flowrun/pkg/api"
)

type (
	// RedisStore is a Store backed by Redis. Records are stored as JSON
	// strings keyed by ID
	RedisStore struct {
		client    redis.UniversalClient
		now       func() time.Time
		prefix    string
		retention time.Duration
	}

	getter interface {
		Get(context.Context, string) *redis.StringCmd
	}

	multiGetter interface {
		MGet(context.Context, ...string) *redis.SliceCmd
	}

	// RedisConfig configures a RedisStore
	RedisConfig struct {
		Addr      string
		Password  string
		Prefix    string
		DB        int
		Retention time.Duration
	}
)

const (
	DefaultPrefix    = "flowrun"
	DefaultListLimit = 50

	maxWatchRetries  = 10
	redisProtocol    = 2
	flowRunKeyPart   = "flowrun"
	taskRunKeyPart   = "taskrun"
	flowRunIndexPart = "flowruns"
	flowRunTasksPart = "tasks"
	keySeparator     = ":"
)

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects a RedisStore using the provided configuration
func NewRedisStore(cfg RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		Protocol:        redisProtocol,
		DisableIdentity: true,
	})
	return NewRedisStoreWithClient(client, cfg.Prefix, cfg.Retention)
}

// NewRedisStoreWithClient wraps an existing Redis client. A positive
// retention expires terminal runs after that duration
func NewRedisStoreWithClient(
	client redis.UniversalClient, prefix string, retention time.Duration,
) *RedisStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisStore{
		client:    client,
		now:       time.Now,
		prefix:    prefix,
		retention: retention,
	}
}

// WithClock returns a copy of the store that reads time from now
func (s *RedisStore) WithClock(now func() time.Time) *RedisStore {
	res := *s
	res.now = now
	return &res
}

// Close releases the underlying Redis client
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks that Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// CreateFlowRun persists a new flow run in the running state unless a status
// is already set
func (s *RedisStore) CreateFlowRun(
	ctx context.Context, run *api.FlowRun,
) (*api.FlowRun, error) {
	res := *run
	now := s.now()
	res.ID = api.FlowRunID(uuid.NewString())
	res.CreatedAt = now
	res.UpdatedAt = now
	if res.Status == "" {
		res.Status = api.FlowRunning
	}

	data, err := json.Marshal(&res)
	if err != nil {
		return nil, err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.flowRunKey(res.ID), data, 0)
		pipe.ZAdd(ctx, s.flowRunIndexKey(), redis.Z{
			Score:  float64(now.UnixNano()),
			Member: string(res.ID),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// UpdateFlowRun overwrites a flow run. A flow run that has already reached a
// terminal status cannot be updated again
func (s *RedisStore) UpdateFlowRun(
	ctx context.Context, run *api.FlowRun,
) (*api.FlowRun, error) {
	if run.ID == "" {
		return nil, ErrMissingID
	}

	var res api.FlowRun
	key := s.flowRunKey(run.ID)
	err := s.watch(ctx, func(tx *redis.Tx) error {
		existing, err := getJSON[api.FlowRun](ctx, tx, key)
		if err != nil {
			return flowRunErr(err, run.ID)
		}
		if existing.IsTerminal() {
			return fmt.Errorf("%w: %s", ErrFlowRunTerminal, run.ID)
		}

		res = *run
		res.CreatedAt = existing.CreatedAt
		res.UpdatedAt = s.now()
		data, err := json.Marshal(&res)
		if err != nil {
			return err
		}

		var taskIDs []string
		if res.IsTerminal() && s.retention > 0 {
			taskIDs, err = tx.LRange(ctx, s.tasksKey(run.ID), 0, -1).Result()
			if err != nil {
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if res.IsTerminal() && s.retention > 0 {
				s.expireRun(ctx, pipe, run.ID, taskIDs)
			}
			return nil
		})
		return err
	}, key)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// CreateTaskRun persists a new task run. The owning flow run must exist and
// must still be running
func (s *RedisStore) CreateTaskRun(
	ctx context.Context, run *api.TaskRun,
) (*api.TaskRun, error) {
	if run.FlowRunID == "" {
		return nil, ErrMissingID
	}

	var res api.TaskRun
	flowKey := s.flowRunKey(run.FlowRunID)
	err := s.watch(ctx, func(tx *redis.Tx) error {
		flow, err := getJSON[api.FlowRun](ctx, tx, flowKey)
		if err != nil {
			return flowRunErr(err, run.FlowRunID)
		}
		if flow.IsTerminal() {
			return fmt.Errorf("%w: %s", ErrFlowRunTerminal, run.FlowRunID)
		}

		res = *run
		res.ID = api.TaskRunID(uuid.NewString())
		if res.Status == "" {
			res.Status = api.TaskRunning
		}
		data, err := json.Marshal(&res)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.taskRunKey(res.ID), data, 0)
			pipe.RPush(ctx, s.tasksKey(res.FlowRunID), string(res.ID))
			return nil
		})
		return err
	}, flowKey)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// UpdateTaskRun overwrites a task run. A task run that has already reached a
// terminal status cannot be updated again
func (s *RedisStore) UpdateTaskRun(
	ctx context.Context, run *api.TaskRun,
) (*api.TaskRun, error) {
	if run.ID == "" {
		return nil, ErrMissingID
	}

	var res api.TaskRun
	key := s.taskRunKey(run.ID)
	err := s.watch(ctx, func(tx *redis.Tx) error {
		existing, err := getJSON[api.TaskRun](ctx, tx, key)
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", ErrTaskRunNotFound, run.ID)
		}
		if err != nil {
			return err
		}
		if existing.Status.IsTerminal() {
			return fmt.Errorf("%w: %s", ErrTaskRunTerminal, run.ID)
		}

		res = *run
		res.FlowRunID = existing.FlowRunID
		res.TaskName = existing.TaskName
		data, err := json.Marshal(&res)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// GetFlowRun retrieves a flow run by ID
func (s *RedisStore) GetFlowRun(
	ctx context.Context, id api.FlowRunID,
) (*api.FlowRun, error) {
	res, err := getJSON[api.FlowRun](ctx, s.client, s.flowRunKey(id))
	if err != nil {
		return nil, flowRunErr(err, id)
	}
	return res, nil
}

// GetTaskRun retrieves a task run by ID
func (s *RedisStore) GetTaskRun(
	ctx context.Context, id api.TaskRunID,
) (*api.TaskRun, error) {
	res, err := getJSON[api.TaskRun](ctx, s.client, s.taskRunKey(id))
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrTaskRunNotFound, id)
	}
	return res, err
}

// ListTaskRuns returns the task runs of a flow run in creation order
func (s *RedisStore) ListTaskRuns(
	ctx context.Context, id api.FlowRunID,
) ([]*api.TaskRun, error) {
	ids, err := s.client.LRange(ctx, s.tasksKey(id), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(ids))
	for i, taskID := range ids {
		keys[i] = s.taskRunKey(api.TaskRunID(taskID))
	}
	return mgetJSON[api.TaskRun](ctx, s.client, keys)
}

// ListFlowRuns returns up to limit flow runs, newest first. Index entries
// whose records have expired are pruned
func (s *RedisStore) ListFlowRuns(
	ctx context.Context, limit int,
) ([]*api.FlowRun, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	indexKey := s.flowRunIndexKey()
	ids, err := s.client.ZRevRange(ctx, indexKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.flowRunKey(api.FlowRunID(id))
	}
	runs, err := mgetJSON[api.FlowRun](ctx, s.client, keys)
	if err != nil {
		return nil, err
	}

	if len(runs) < len(ids) {
		s.pruneIndex(ctx, ids, runs)
	}
	return runs, nil
}

func (s *RedisStore) pruneIndex(
	ctx context.Context, ids []string, found []*api.FlowRun,
) {
	present := make(map[api.FlowRunID]struct{}, len(found))
	for _, run := range found {
		present[run.ID] = struct{}{}
	}
	var stale []any
	for _, id := range ids {
		if _, ok := present[api.FlowRunID(id)]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		_ = s.client.ZRem(ctx, s.flowRunIndexKey(), stale...).Err()
	}
}

func (s *RedisStore) expireRun(
	ctx context.Context, pipe redis.Pipeliner, id api.FlowRunID,
	taskIDs []string,
) {
	pipe.Expire(ctx, s.flowRunKey(id), s.retention)
	pipe.Expire(ctx, s.tasksKey(id), s.retention)
	for _, taskID := range taskIDs {
		pipe.Expire(ctx, s.taskRunKey(api.TaskRunID(taskID)), s.retention)
	}
}

func (s *RedisStore) watch(
	ctx context.Context, fn func(*redis.Tx) error, keys ...string,
) error {
	for range maxWatchRetries {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}

func (s *RedisStore) flowRunKey(id api.FlowRunID) string {
	return s.key(flowRunKeyPart, string(id))
}

func (s *RedisStore) tasksKey(id api.FlowRunID) string {
	return s.key(flowRunKeyPart, string(id), flowRunTasksPart)
}

func (s *RedisStore) taskRunKey(id api.TaskRunID) string {
	return s.key(taskRunKeyPart, string(id))
}

func (s *RedisStore) flowRunIndexKey() string {
	return s.key(flowRunIndexPart)
}

func (s *RedisStore) key(parts ...string) string {
	res := s.prefix
	for _, part := range parts {
		res += keySeparator + part
	}
	return res
}

func flowRunErr(err error, id api.FlowRunID) error {
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %s", ErrFlowRunNotFound, id)
	}
	return err
}

func getJSON[T any](
	ctx context.Context, client getter, key string,
) (*T, error) {
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var res T
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func mgetJSON[T any](
	ctx context.Context, client multiGetter, keys []string,
) ([]*T, error) {
	if len(keys) == 0 {
		return []*T{}, nil
	}
	values, err := client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	res := make([]*T, 0, len(values))
	for _, value := range values {
		str, ok := value.(string)
		if !ok {
			continue
		}
		var rec T
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			return nil, err
		}
		res = append(res, &rec)
	}
	return res, nil
}
