package biz

import (
	"context"

	creditErrors "credit-service/internal/errors"

	"github.com/shopspring/decimal"
)

// Package 积分套餐领域对象
type Package struct {
	Reference string
	Name      string
	Credits   int64
	Price     decimal.Decimal
}

// IsFree 价格为 0 的套餐即免费套餐
func (p *Package) IsFree() bool {
	return p.Price.IsZero()
}

// PackageCatalog 套餐目录（只读）
type PackageCatalog interface {
	GetPackage(ctx context.Context, reference string) (*Package, error)
	ListPackages(ctx context.Context) ([]*Package, error)
}

// configPackageCatalog 基于配置文件的套餐目录
type configPackageCatalog struct {
	byReference map[string]*Package
	ordered     []*Package
}

// NewPackageCatalog 创建套餐目录
func NewPackageCatalog(c *LedgerConfig) PackageCatalog {
	catalog := &configPackageCatalog{
		byReference: make(map[string]*Package, len(c.Packages)),
	}
	for _, p := range c.Packages {
		catalog.byReference[p.Reference] = p
		catalog.ordered = append(catalog.ordered, p)
	}
	return catalog
}

// GetPackage 按引用查询套餐
func (c *configPackageCatalog) GetPackage(_ context.Context, reference string) (*Package, error) {
	p, ok := c.byReference[reference]
	if !ok {
		return nil, creditErrors.ErrUnknownPackage
	}
	copied := *p
	return &copied, nil
}

// ListPackages 列出全部套餐（保持配置顺序）
func (c *configPackageCatalog) ListPackages(_ context.Context) ([]*Package, error) {
	packages := make([]*Package, 0, len(c.ordered))
	for _, p := range c.ordered {
		copied := *p
		packages = append(packages, &copied)
	}
	return packages, nil
}
