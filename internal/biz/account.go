package biz

import (
	"context"
	"time"
	"unicode/utf8"

	creditErrors "credit-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
)

// maxAccountIDLength 与 credit_account.account_id 列宽一致
const maxAccountIDLength = 64

// Account 积分账户领域对象
type Account struct {
	AccountID      string
	CurrentCredits int64 // 可用积分，永不为负
	BonusCredits   int64 // 赠送积分，仅展示，不参与扣减
	UsedCredits    int64 // 累计消费，只增不减
	Version        int64 // 每次变更 +1
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AccountRepo 账户数据层接口（定义在 biz 层）
//
// 积分的增减不在这里暴露：入账只发生在交易完成时（TransactionRepo），
// 扣减只发生在消费时（UsageRepo），两者都与对应的流水写入处于同一个事务。
type AccountRepo interface {
	// GetOrCreateAccount 不存在时以 initialCredits 创建，并发首次访问只会创建一行
	GetOrCreateAccount(ctx context.Context, accountID string, initialCredits int64) (*Account, error)
}

// AccountUseCase 账户业务逻辑
type AccountUseCase struct {
	repo AccountRepo
	conf *LedgerConfig
	log  *log.Helper
}

// NewAccountUseCase 创建账户 UseCase
func NewAccountUseCase(repo AccountRepo, conf *LedgerConfig, logger log.Logger) *AccountUseCase {
	return &AccountUseCase{
		repo: repo,
		conf: conf,
		log:  log.NewHelper(logger),
	}
}

// GetOrCreate 获取账户，不存在时按默认初始积分创建
func (uc *AccountUseCase) GetOrCreate(ctx context.Context, accountID string) (*Account, error) {
	if err := validateAccountID(accountID); err != nil {
		return nil, err
	}
	account, err := uc.repo.GetOrCreateAccount(ctx, accountID, uc.conf.InitialCredits)
	if err != nil {
		uc.log.Errorf("GetOrCreateAccount failed: account_id=%s, error=%v", accountID, err)
		return nil, err
	}
	return account, nil
}

func validateAccountID(accountID string) error {
	if accountID == "" || len(accountID) > maxAccountIDLength {
		return creditErrors.ErrInvalidAccountID
	}
	return nil
}

// fitsColumn varchar(n) 按字符计长（utf8mb4），不按字节
func fitsColumn(s string, n int) bool {
	return utf8.RuneCountInString(s) <= n
}
