package conf

import (
	"encoding/json"
	"fmt"
	"time"
)

// Bootstrap 配置根节点
type Bootstrap struct {
	Server *Server `json:"server"`
	Data   *Data   `json:"data"`
	Ledger *Ledger `json:"ledger"`
	Cron   *Cron   `json:"cron"`
	Admin  *Admin  `json:"admin"`
}

// Server 服务配置
type Server struct {
	Http *Server_HTTP `json:"http"`
}

// Server_HTTP HTTP 服务配置
type Server_HTTP struct {
	Network string    `json:"network"`
	Addr    string    `json:"addr"`
	Timeout *Duration `json:"timeout"`
}

// Data 数据层配置
type Data struct {
	Database *Data_Database `json:"database"`
	Redis    *Data_Redis    `json:"redis"`
	Rocketmq *Data_RocketMQ `json:"rocketmq"`
}

// Data_Database 数据库配置
type Data_Database struct {
	Driver       string    `json:"driver"`
	Source       string    `json:"source"`
	MaxOpenConns int32     `json:"max_open_conns"`
	MaxIdleConns int32     `json:"max_idle_conns"`
	MaxLifetime  *Duration `json:"max_lifetime"`
	AutoMigrate  bool      `json:"auto_migrate"`
}

// Data_Redis Redis 配置
type Data_Redis struct {
	Addr         string    `json:"addr"`
	Password     string    `json:"password"`
	Db           int32     `json:"db"`
	ReadTimeout  *Duration `json:"read_timeout"`
	WriteTimeout *Duration `json:"write_timeout"`
	CacheTtl     *Duration `json:"cache_ttl"`
}

// Data_RocketMQ RocketMQ 配置
type Data_RocketMQ struct {
	Enabled       bool     `json:"enabled"`
	NameServers   []string `json:"name_servers"`
	GroupName     string   `json:"group_name"`
	ProducerGroup string   `json:"producer_group"`
	RetryTimes    int32    `json:"retry_times"`
	EventTopic    string   `json:"event_topic"`
	UsageTopic    string   `json:"usage_topic"`
}

// Ledger 积分账本配置
type Ledger struct {
	InitialCredits      int64      `json:"initial_credits"`
	Timezone            string     `json:"timezone"`
	PendingExpiry       *Duration  `json:"pending_expiry"`
	LowBalanceThreshold int64      `json:"low_balance_threshold"`
	Packages            []*Package `json:"packages"`
}

// Package 积分套餐
type Package struct {
	Reference string `json:"reference"`
	Name      string `json:"name"`
	Credits   int64  `json:"credits"`
	// Price 以字符串保存，避免浮点误差
	Price string `json:"price"`
}

// Cron 定时任务配置
type Cron struct {
	ReconcileSpec string    `json:"reconcile_spec"`
	ExpireSpec    string    `json:"expire_spec"`
	LockExpiry    *Duration `json:"lock_expiry"`
}

// Admin 管理接口配置
type Admin struct {
	Token string `json:"token"`
}

// Duration 支持 "1s"、"500ms" 形式的时长配置
type Duration struct {
	time.Duration
}

// AsDuration 返回 time.Duration（nil 安全）
func (d *Duration) AsDuration() time.Duration {
	if d == nil {
		return 0
	}
	return d.Duration
}

// UnmarshalJSON 解析字符串或纳秒整数
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration: %s", string(b))
	}
}

// MarshalJSON 输出字符串形式
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}
