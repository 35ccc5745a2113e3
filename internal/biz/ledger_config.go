package biz

import (
	"fmt"
	"time"

	"credit-service/internal/conf"
	"credit-service/internal/constants"

	"github.com/shopspring/decimal"
)

// LedgerConfig 账本配置
type LedgerConfig struct {
	InitialCredits      int64          // 新账户初始赠送积分
	Location            *time.Location // 月度桶时区
	PendingExpiry       time.Duration  // 待审核交易过期时间（0 表示不过期）
	LowBalanceThreshold int64          // 低余额告警阈值
	Packages            []*Package

	// Now 可替换的时钟（测试使用）
	Now func() time.Time
}

// NewLedgerConfig 从配置创建 LedgerConfig
func NewLedgerConfig(c *conf.Bootstrap) (*LedgerConfig, error) {
	config := &LedgerConfig{
		InitialCredits: constants.DefaultInitialCredits, // 默认值
		Location:       time.UTC,
		Now:            time.Now,
	}
	if c == nil || c.Ledger == nil {
		return config, nil
	}

	l := c.Ledger
	if l.InitialCredits > 0 {
		config.InitialCredits = l.InitialCredits
	}
	if l.Timezone != "" {
		loc, err := time.LoadLocation(l.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid ledger timezone %q: %w", l.Timezone, err)
		}
		config.Location = loc
	}
	config.PendingExpiry = l.PendingExpiry.AsDuration()
	config.LowBalanceThreshold = l.LowBalanceThreshold

	seen := make(map[string]struct{}, len(l.Packages))
	for _, p := range l.Packages {
		if p == nil || p.Reference == "" {
			return nil, fmt.Errorf("package reference is required")
		}
		if _, ok := seen[p.Reference]; ok {
			return nil, fmt.Errorf("duplicate package reference %q", p.Reference)
		}
		seen[p.Reference] = struct{}{}

		if p.Credits <= 0 {
			return nil, fmt.Errorf("package %q: credits must be positive", p.Reference)
		}
		price := decimal.Zero
		if p.Price != "" {
			parsed, err := decimal.NewFromString(p.Price)
			if err != nil {
				return nil, fmt.Errorf("package %q: invalid price: %w", p.Reference, err)
			}
			price = parsed
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("package %q: price must not be negative", p.Reference)
		}
		config.Packages = append(config.Packages, &Package{
			Reference: p.Reference,
			Name:      p.Name,
			Credits:   p.Credits,
			Price:     price,
		})
	}
	return config, nil
}

func (c *LedgerConfig) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// MonthBucket 返回 t 所在自然月的桶标识 (YYYY-MM)
func (c *LedgerConfig) MonthBucket(t time.Time) string {
	return t.In(c.location()).Format(constants.TimeFormatMonth)
}

// MonthStart 返回 t 所在自然月的第一天零点
func (c *LedgerConfig) MonthStart(t time.Time) time.Time {
	local := t.In(c.location())
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, c.location())
}

func (c *LedgerConfig) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}
