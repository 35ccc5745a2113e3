package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"credit-service/internal/biz"
	"credit-service/internal/conf"
	"credit-service/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redis/redis/v8"
)

// setBalanceScript 只在缓存版本不高于新版本时写入，避免旧数据覆盖新数据
var setBalanceScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if current and tonumber(current) > tonumber(ARGV[1]) then
    return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'payload', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// cacheTimeout 缓存操作超时，避免 Redis 抖动拖慢主流程
const cacheTimeout = time.Second

type cachedBalance struct {
	AccountID      string    `json:"account_id"`
	CurrentCredits int64     `json:"current_credits"`
	BonusCredits   int64     `json:"bonus_credits"`
	UsedCredits    int64     `json:"used_credits"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// balanceCache Redis 余额缓存；rdb 为 nil 时所有操作为空操作
type balanceCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *log.Helper
}

// NewBalanceCache 创建余额缓存
func NewBalanceCache(data *Data, c *conf.Bootstrap, logger log.Logger) biz.BalanceCache {
	return &balanceCache{
		rdb: data.rdb,
		ttl: cacheTTL(c),
		log: log.NewHelper(logger),
	}
}

func balanceKey(accountID string) string {
	return fmt.Sprintf("%s%s", constants.RedisKeyBalance, accountID)
}

// Get 读取缓存，未命中或出错返回 false
func (c *balanceCache) Get(ctx context.Context, accountID string) (*biz.Account, bool) {
	if c.rdb == nil {
		return nil, false
	}
	cacheCtx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()

	payload, err := c.rdb.HGet(cacheCtx, balanceKey(accountID), "payload").Result()
	if err != nil {
		if err != redis.Nil {
			c.log.Warnf("Read balance cache failed: account_id=%s, error=%v", accountID, err)
		}
		return nil, false
	}
	var cached cachedBalance
	if err := json.Unmarshal([]byte(payload), &cached); err != nil {
		c.log.Warnf("Decode balance cache failed: account_id=%s, error=%v", accountID, err)
		c.Delete(ctx, accountID)
		return nil, false
	}
	return &biz.Account{
		AccountID:      cached.AccountID,
		CurrentCredits: cached.CurrentCredits,
		BonusCredits:   cached.BonusCredits,
		UsedCredits:    cached.UsedCredits,
		Version:        cached.Version,
		CreatedAt:      cached.CreatedAt,
		UpdatedAt:      cached.UpdatedAt,
	}, true
}

// Set 写入缓存（版本保护）；写入失败时删除 key，下次读取回源
func (c *balanceCache) Set(ctx context.Context, account *biz.Account) {
	if c.rdb == nil || account == nil {
		return
	}
	payload, err := json.Marshal(&cachedBalance{
		AccountID:      account.AccountID,
		CurrentCredits: account.CurrentCredits,
		BonusCredits:   account.BonusCredits,
		UsedCredits:    account.UsedCredits,
		Version:        account.Version,
		CreatedAt:      account.CreatedAt,
		UpdatedAt:      account.UpdatedAt,
	})
	if err != nil {
		return
	}

	cacheCtx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	key := balanceKey(account.AccountID)
	if err := setBalanceScript.Run(cacheCtx, c.rdb, []string{key}, account.Version, string(payload), c.ttl.Milliseconds()).Err(); err != nil {
		c.log.Warnf("Update balance cache failed: account_id=%s, error=%v", account.AccountID, err)
		c.Delete(ctx, account.AccountID)
	}
}

// Delete 删除缓存
func (c *balanceCache) Delete(ctx context.Context, accountID string) {
	if c.rdb == nil {
		return
	}
	cacheCtx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	if err := c.rdb.Del(cacheCtx, balanceKey(accountID)).Err(); err != nil {
		c.log.Warnf("Delete balance cache failed: account_id=%s, error=%v", accountID, err)
	}
}
