package migration

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/smallbiznis/scambio/internal/config"
	eventsdomain "github.com/smallbiznis/scambio/internal/events/domain"
	organizationdomain "github.com/smallbiznis/scambio/internal/organization/domain"
	referencedomain "github.com/smallbiznis/scambio/internal/reference/domain"
	"github.com/smallbiznis/scambio/internal/seed"
	transmissiondomain "github.com/smallbiznis/scambio/internal/transmission/domain"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			if err := conn.AutoMigrate(
				&organizationdomain.Organization{},
				&referencedomain.Country{},
				&referencedomain.TaxRegime{},
				&referencedomain.DocumentType{},
				&referencedomain.VATNature{},
				&transmissiondomain.Transmission{},
				&transmissiondomain.TransmissionHistory{},
				&transmissiondomain.SDINotification{},
				&transmissiondomain.TransmissionCounter{},
				&eventsdomain.SDIEvent{},
			); err != nil {
				return err
			}
		}

		if err := seed.EnsureReferenceData(conn); err != nil {
			return err
		}

		if cfg.IsCloud() && cfg.Cloud.OrganizationID != "" {
			orgID, err := snowflake.ParseString(cfg.Cloud.OrganizationID)
			if err != nil {
				return err
			}
			return seed.EnsureMainOrgWithID(conn, orgID)
		}
		return seed.EnsureMainOrg(conn)
	}),
)
