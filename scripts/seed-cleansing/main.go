// seed-cleansing loads a cleansing results file into a development database
// and cache so the label workflow can be exercised without the import pipeline.
//
// The input is a JSON array in the cache format:
//
//	[{"id": 1, "address_line_1": "12 Oak Ave", "pm_property_id": 30,
//	  "cleansing_results": [{"field": "pm_property_id", "message": "Missing PM ID", "severity": "error"}]}]
//
// One building is inserted per row and the row ids are rewritten to the new
// building ids. The import file is created and its progress set to 100.
//
// Usage: go run ./scripts/seed-cleansing -org 1 results.json
//
// Connections: standard PG* and REDIS_* environment variables
//
// Flags:
//
//	-org    Organization ID (required)
//	-name   Import file name (default: the input file name)
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ekaya-inc/cleansing-engine/pkg/config"
	"github.com/ekaya-inc/cleansing-engine/pkg/database"
	"github.com/ekaya-inc/cleansing-engine/pkg/models"
	"github.com/ekaya-inc/cleansing-engine/pkg/repositories"
)

type seedConfig struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
}

func main() {
	orgID := flag.Int64("org", 0, "Organization ID")
	name := flag.String("name", "", "Import file name")
	flag.Parse()

	args := flag.Args()
	if *orgID <= 0 || len(args) != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s -org <organization-id> [-name <file name>] <results.json>\n", os.Args[0])
		os.Exit(1)
	}
	if *name == "" {
		*name = filepath.Base(args[0])
	}

	if err := run(context.Background(), *orgID, *name, args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "Seed failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, orgID int64, fileName, path string) error {
	var cfg seedConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var groups []*models.RecordValidationGroup
	if err := json.Unmarshal(raw, &groups); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	logger := zap.NewNop()
	db, err := database.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	tenantCtx, cleanup, err := database.NewTenantScopeProvider(db).WithTenantScope(ctx, orgID)
	if err != nil {
		return err
	}
	defer cleanup()

	file := &models.ImportFile{OrganizationID: orgID, Name: fileName}
	if err := repositories.NewImportFileRepository().Create(tenantCtx, file); err != nil {
		return fmt.Errorf("create import file: %w", err)
	}

	scope, _ := database.GetTenantScope(tenantCtx)
	err = scope.InTx(tenantCtx, func(tx pgx.Tx) error {
		for _, g := range groups {
			addr, _ := g.Attribute("address_line_1")
			pmID, _ := g.Attribute("pm_property_id")
			taxLot, _ := g.Attribute("tax_lot_id")
			customID, _ := g.Attribute("custom_id_1")
			if err := tx.QueryRow(tenantCtx, `
				INSERT INTO buildings (organization_id, import_file_id, address_line_1, pm_property_id, tax_lot_id, custom_id_1)
				VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''))
				RETURNING id`,
				orgID, file.ID, addr, pmID, taxLot, customID,
			).Scan(&g.RecordID); err != nil {
				return fmt.Errorf("insert building: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	cache := repositories.NewCleansingCache(redisClient, repositories.DefaultCleansingTTL)
	if err := cache.PutResults(ctx, file.ID, groups); err != nil {
		return err
	}
	if err := cache.SetProgress(ctx, file.ID, 100); err != nil {
		return err
	}

	fmt.Printf("Seeded import file %d (%s) with %d buildings for organization %d\n", file.ID, fileName, len(groups), orgID)
	return nil
}
