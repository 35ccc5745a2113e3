package biz

import "github.com/google/wire"

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewLedgerConfig,
	NewPackageCatalog,
	NewAccountUseCase,
	NewTransactionUseCase,
	NewUsageUseCase,
	NewApprovalUseCase,
	NewMaintenanceUseCase,
	NewLedgerUseCase, // 组合 UseCase
)
