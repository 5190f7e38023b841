// Package seed bootstraps reference data so a fresh install can sell
// consultations without manual catalog setup.
package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/consultapj/consultapj/internal/catalog/domain"
	plandomain "github.com/consultapj/consultapj/internal/plan/domain"
	"gorm.io/gorm"
)

var defaultCatalog = []catalogdomain.ConsultationType{
	{Code: "protestos", Name: "Protestos", CostMinor: 1500, Provider: catalogdomain.ProviderProtesto, Active: true},
	{Code: "receita_federal", Name: "Receita Federal", CostMinor: 500, Provider: catalogdomain.ProviderRegistry, Active: true},
	{Code: "cadastro_contribuintes", Name: "Cadastro de Contribuintes", CostMinor: 500, Provider: catalogdomain.ProviderRegistry, Active: true},
	{Code: "geocodificacao", Name: "Geocodificação", CostMinor: 300, Provider: catalogdomain.ProviderRegistry, Active: true},
	{Code: "suframa", Name: "SUFRAMA", CostMinor: 500, Provider: catalogdomain.ProviderRegistry, Active: true},
	{Code: "simples_nacional", Name: "Simples Nacional", CostMinor: 500, Provider: catalogdomain.ProviderRegistry, Active: true},
}

var defaultPlan = plandomain.Plan{
	Code:                "recarga_10000",
	Name:                "Recarga R$ 100",
	PriceMinor:          10000,
	IncludedCreditMinor: 10000,
	Active:              true,
}

// EnsureCatalog inserts any missing consultation types and the default
// auto-renewal plan. Existing rows are left untouched so administrative price
// changes survive restarts.
func EnsureCatalog(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, entry := range defaultCatalog {
			var count int64
			if err := tx.Model(&catalogdomain.ConsultationType{}).
				Where("code = ?", entry.Code).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			entry.ID = node.Generate()
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
		}

		var count int64
		if err := tx.Model(&plandomain.Plan{}).
			Where("code = ?", defaultPlan.Code).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			plan := defaultPlan
			plan.ID = node.Generate()
			if err := tx.Create(&plan).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
