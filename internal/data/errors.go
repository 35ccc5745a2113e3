package data

import (
	"errors"
	"strings"

	creditErrors "credit-service/internal/errors"

	"gorm.io/gorm"
)

// isDuplicateKey 唯一约束冲突（TranslateError 之外再按驱动错误文本兜底）
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}

// storeError 业务错误原样返回，其余底层错误包装为 STORE_UNAVAILABLE
func storeError(err error) error {
	if err == nil {
		return nil
	}
	if creditErrors.IsBusiness(err) {
		return err
	}
	if errors.Is(err, creditErrors.ErrStoreUnavailable) {
		return err
	}
	return creditErrors.StoreUnavailable(err)
}
