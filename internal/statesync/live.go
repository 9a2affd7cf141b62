package statesync

import (
	"context"
	"errors"
	"time"

	"robosim/backend/internal/types"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// LiveStore 实时状态存储
// 写入失败不应使执行失败，调用方只记录告警
type LiveStore interface {
	SaveRecord(ctx context.Context, rec *RunRecord) error
	LoadRecord(ctx context.Context, simulationID uint) (*RunRecord, error)
	LoadExecutionRecord(ctx context.Context, simulationID, executionID uint) (*RunRecord, error)
	SaveDeletion(ctx context.Context, rec *DeletionRecord) error
	LoadDeletion(ctx context.Context, simulationID uint) (*DeletionRecord, error)
	ExpireRun(ctx context.Context, simulationID, executionID uint, ttl time.Duration) error
	Purge(ctx context.Context, simulationID uint) error
}

// RedisLiveStore LiveStore 的Redis实现
type RedisLiveStore struct {
	client *redis.Client
}

// NewRedisLiveStore 创建Redis实时状态存储
func NewRedisLiveStore(client *redis.Client) *RedisLiveStore {
	return &RedisLiveStore{client: client}
}

func liveErr(message string, cause error) error {
	return types.NewAppErrorWithCause(types.ErrCodeLiveStore, message, cause)
}

// SaveRecord 写入完整状态文档，执行键与仿真键互为镜像，
// 同时刷新步骤/分组hash供增量读取
func (s *RedisLiveStore) SaveRecord(ctx context.Context, rec *RunRecord) error {
	data, err := sonic.Marshal(rec)
	if err != nil {
		return liveErr("序列化状态文档失败", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, executionKey(rec.SimulationID, rec.ExecutionID), data, 0)
	pipe.Set(ctx, recordKey(rec.SimulationID), data, 0)

	if len(rec.StepDetails) > 0 {
		meta := StepsMeta{TotalSteps: len(rec.StepDetails)}
		for _, step := range rec.StepDetails {
			if step.Status == "COMPLETED" {
				meta.CompletedSteps++
			}
			if step.Status == "RUNNING" {
				meta.CurrentStep = step.StepOrder
			}
			stepJSON, err := sonic.Marshal(step)
			if err != nil {
				return liveErr("序列化步骤状态失败", err)
			}
			pipe.HSet(ctx, stepsKey(rec.SimulationID), stepField(step.StepOrder), stepJSON)
		}
		metaJSON, err := sonic.Marshal(meta)
		if err != nil {
			return liveErr("序列化步骤meta失败", err)
		}
		pipe.HSet(ctx, stepsKey(rec.SimulationID), hashMetaField, metaJSON)
	}

	if len(rec.GroupDetails) > 0 {
		meta := GroupsMeta{TotalGroups: len(rec.GroupDetails)}
		for _, group := range rec.GroupDetails {
			if group.Status == "COMPLETED" {
				meta.CompletedGroups++
			}
			if group.Status == "RUNNING" {
				meta.RunningGroups++
			}
			groupJSON, err := sonic.Marshal(group)
			if err != nil {
				return liveErr("序列化分组状态失败", err)
			}
			pipe.HSet(ctx, groupsKey(rec.SimulationID), groupField(group.GroupID), groupJSON)
		}
		metaJSON, err := sonic.Marshal(meta)
		if err != nil {
			return liveErr("序列化分组meta失败", err)
		}
		pipe.HSet(ctx, groupsKey(rec.SimulationID), hashMetaField, metaJSON)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return liveErr("写入实时状态失败", err)
	}
	return nil
}

// LoadRecord 读取仿真当前状态文档，键不存在返回 (nil, nil)
func (s *RedisLiveStore) LoadRecord(ctx context.Context, simulationID uint) (*RunRecord, error) {
	return s.load(ctx, recordKey(simulationID))
}

// LoadExecutionRecord 读取指定执行的状态文档，键不存在返回 (nil, nil)
func (s *RedisLiveStore) LoadExecutionRecord(ctx context.Context, simulationID, executionID uint) (*RunRecord, error) {
	return s.load(ctx, executionKey(simulationID, executionID))
}

func (s *RedisLiveStore) load(ctx context.Context, key string) (*RunRecord, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, liveErr("读取实时状态失败", err)
	}
	var rec RunRecord
	if err := sonic.Unmarshal(data, &rec); err != nil {
		return nil, liveErr("解析实时状态失败", err)
	}
	return &rec, nil
}

// SaveDeletion 写入删除进度文档
func (s *RedisLiveStore) SaveDeletion(ctx context.Context, rec *DeletionRecord) error {
	data, err := sonic.Marshal(rec)
	if err != nil {
		return liveErr("序列化删除进度失败", err)
	}
	if err := s.client.Set(ctx, deletionKey(rec.SimulationID), data, time.Hour).Err(); err != nil {
		return liveErr("写入删除进度失败", err)
	}
	return nil
}

// LoadDeletion 读取删除进度文档，键不存在返回 (nil, nil)
func (s *RedisLiveStore) LoadDeletion(ctx context.Context, simulationID uint) (*DeletionRecord, error) {
	data, err := s.client.Get(ctx, deletionKey(simulationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, liveErr("读取删除进度失败", err)
	}
	var rec DeletionRecord
	if err := sonic.Unmarshal(data, &rec); err != nil {
		return nil, liveErr("解析删除进度失败", err)
	}
	return &rec, nil
}

// ExpireRun 给终态执行记录设置TTL
func (s *RedisLiveStore) ExpireRun(ctx context.Context, simulationID, executionID uint, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	pipe.Expire(ctx, recordKey(simulationID), ttl)
	pipe.Expire(ctx, executionKey(simulationID, executionID), ttl)
	pipe.Expire(ctx, stepsKey(simulationID), ttl)
	pipe.Expire(ctx, groupsKey(simulationID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return liveErr("设置实时状态TTL失败", err)
	}
	return nil
}

// Purge 删除仿真的全部实时状态键，删除进度文档除外
func (s *RedisLiveStore) Purge(ctx context.Context, simulationID uint) error {
	var keys []string
	skip := deletionKey(simulationID)
	iter := s.client.Scan(ctx, 0, pattern(simulationID), 100).Iterator()
	for iter.Next(ctx) {
		if iter.Val() == skip {
			continue
		}
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return liveErr("扫描实时状态键失败", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return liveErr("清除实时状态失败", err)
	}
	return nil
}

func pattern(simulationID uint) string {
	return recordKey(simulationID) + "*"
}
