package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	organizationdomain "github.com/smallbiznis/scambio/internal/organization/domain"
	referencedomain "github.com/smallbiznis/scambio/internal/reference/domain"
)

const (
	defaultOrgName      = "Main"
	defaultOrgSlug      = "main"
	defaultOrgVAT       = "01234567897"
	defaultOrgTaxRegime = "RF01"
)

// EnsureMainOrg seeds the default organization for startup bootstrap.
func EnsureMainOrg(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := ensureMainOrgTx(ctx, tx, node.Generate())
		return err
	})
}

// EnsureMainOrgWithID seeds the default organization under a fixed ID,
// used when a managed control plane assigns organization identifiers.
func EnsureMainOrgWithID(db *gorm.DB, id snowflake.ID) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if id == 0 {
		return errors.New("seed organization id is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := ensureMainOrgTx(ctx, tx, id)
		return err
	})
}

func ensureMainOrgTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) (organizationdomain.Organization, error) {
	var org organizationdomain.Organization
	err := tx.WithContext(ctx).Where("slug = ?", defaultOrgSlug).First(&org).Error
	if err == nil {
		return org, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return org, err
	}

	now := time.Now().UTC()
	org = organizationdomain.Organization{
		ID:          id,
		Name:        defaultOrgName,
		Slug:        defaultOrgSlug,
		VATNumber:   defaultOrgVAT,
		TaxRegime:   defaultOrgTaxRegime,
		CountryCode: "IT",
		IsDefault:   true,
		Metadata:    datatypes.JSONMap{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.WithContext(ctx).Create(&org).Error; err != nil {
		return org, err
	}
	return org, nil
}

// EnsureReferenceData fills the FatturaPA code tables. Rows are
// inserted with conflict-ignore so repeat startups are no-ops.
func EnsureReferenceData(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		onConflict := clause.OnConflict{DoNothing: true}

		countries := seedCountries()
		if err := tx.WithContext(ctx).Clauses(onConflict).Create(&countries).Error; err != nil {
			return err
		}

		regimes := seedTaxRegimes()
		if err := tx.WithContext(ctx).Clauses(onConflict).Create(&regimes).Error; err != nil {
			return err
		}

		docTypes := seedDocumentTypes()
		if err := tx.WithContext(ctx).Clauses(onConflict).Create(&docTypes).Error; err != nil {
			return err
		}

		natures := seedVATNatures()
		return tx.WithContext(ctx).Clauses(onConflict).Create(&natures).Error
	})
}

func seedCountries() []referencedomain.Country {
	pairs := []struct{ code, name string }{
		{"IT", "Italy"},
		{"AT", "Austria"},
		{"BE", "Belgium"},
		{"BG", "Bulgaria"},
		{"CH", "Switzerland"},
		{"CY", "Cyprus"},
		{"CZ", "Czechia"},
		{"DE", "Germany"},
		{"DK", "Denmark"},
		{"EE", "Estonia"},
		{"ES", "Spain"},
		{"FI", "Finland"},
		{"FR", "France"},
		{"GB", "United Kingdom"},
		{"GR", "Greece"},
		{"HR", "Croatia"},
		{"HU", "Hungary"},
		{"IE", "Ireland"},
		{"LT", "Lithuania"},
		{"LU", "Luxembourg"},
		{"LV", "Latvia"},
		{"MT", "Malta"},
		{"NL", "Netherlands"},
		{"PL", "Poland"},
		{"PT", "Portugal"},
		{"RO", "Romania"},
		{"SE", "Sweden"},
		{"SI", "Slovenia"},
		{"SK", "Slovakia"},
		{"SM", "San Marino"},
		{"US", "United States"},
	}

	countries := make([]referencedomain.Country, 0, len(pairs))
	for _, pair := range pairs {
		countries = append(countries, referencedomain.Country{Code: pair.code, Name: pair.name})
	}
	return countries
}

func seedTaxRegimes() []referencedomain.TaxRegime {
	pairs := []struct{ code, description string }{
		{"RF01", "Ordinario"},
		{"RF02", "Contribuenti minimi"},
		{"RF04", "Agricoltura e attivita connesse e pesca"},
		{"RF05", "Vendita sali e tabacchi"},
		{"RF06", "Commercio fiammiferi"},
		{"RF07", "Editoria"},
		{"RF08", "Gestione servizi telefonia pubblica"},
		{"RF09", "Rivendita documenti di trasporto pubblico e di sosta"},
		{"RF10", "Intrattenimenti, giochi e altre attivita"},
		{"RF11", "Agenzie viaggi e turismo"},
		{"RF12", "Agriturismo"},
		{"RF13", "Vendite a domicilio"},
		{"RF14", "Rivendita beni usati, oggetti d'arte, d'antiquariato o da collezione"},
		{"RF15", "Agenzie di vendite all'asta di oggetti d'arte, antiquariato o da collezione"},
		{"RF16", "IVA per cassa P.A."},
		{"RF17", "IVA per cassa"},
		{"RF18", "Altro"},
		{"RF19", "Regime forfettario"},
	}

	regimes := make([]referencedomain.TaxRegime, 0, len(pairs))
	for _, pair := range pairs {
		regimes = append(regimes, referencedomain.TaxRegime{Code: pair.code, Description: pair.description})
	}
	return regimes
}

func seedDocumentTypes() []referencedomain.DocumentType {
	pairs := []struct{ code, description string }{
		{"TD01", "Fattura"},
		{"TD02", "Acconto/anticipo su fattura"},
		{"TD03", "Acconto/anticipo su parcella"},
		{"TD04", "Nota di credito"},
		{"TD05", "Nota di debito"},
		{"TD06", "Parcella"},
		{"TD16", "Integrazione fattura reverse charge interno"},
		{"TD17", "Integrazione/autofattura per acquisto servizi dall'estero"},
		{"TD18", "Integrazione per acquisto di beni intracomunitari"},
		{"TD19", "Integrazione/autofattura per acquisto di beni ex art.17 c.2 DPR 633/72"},
		{"TD20", "Autofattura per regolarizzazione e integrazione delle fatture"},
		{"TD21", "Autofattura per splafonamento"},
		{"TD22", "Estrazione beni da Deposito IVA"},
		{"TD23", "Estrazione beni da Deposito IVA con versamento dell'IVA"},
		{"TD24", "Fattura differita di cui all'art.21 comma 4 lett. a"},
		{"TD25", "Fattura differita di cui all'art.21 comma 4 terzo periodo lett. b"},
		{"TD26", "Cessione di beni ammortizzabili e per passaggi interni"},
		{"TD27", "Fattura per autoconsumo o per cessioni gratuite senza rivalsa"},
		{"TD28", "Acquisti da San Marino con IVA (fattura cartacea)"},
	}

	types := make([]referencedomain.DocumentType, 0, len(pairs))
	for _, pair := range pairs {
		types = append(types, referencedomain.DocumentType{Code: pair.code, Description: pair.description, IsActive: true})
	}
	return types
}

func seedVATNatures() []referencedomain.VATNature {
	pairs := []struct{ code, description string }{
		{"N1", "Escluse ex art. 15"},
		{"N2.1", "Non soggette ad IVA ai sensi degli artt. da 7 a 7-septies"},
		{"N2.2", "Non soggette - altri casi"},
		{"N3.1", "Non imponibili - esportazioni"},
		{"N3.2", "Non imponibili - cessioni intracomunitarie"},
		{"N3.3", "Non imponibili - cessioni verso San Marino"},
		{"N3.4", "Non imponibili - operazioni assimilate alle cessioni all'esportazione"},
		{"N3.5", "Non imponibili - a seguito di dichiarazioni d'intento"},
		{"N3.6", "Non imponibili - altre operazioni che non concorrono alla formazione del plafond"},
		{"N4", "Esenti"},
		{"N5", "Regime del margine / IVA non esposta in fattura"},
		{"N6.1", "Inversione contabile - cessione di rottami e altri materiali di recupero"},
		{"N6.2", "Inversione contabile - cessione di oro e argento puro"},
		{"N6.3", "Inversione contabile - subappalto nel settore edile"},
		{"N6.4", "Inversione contabile - cessione di fabbricati"},
		{"N6.5", "Inversione contabile - cessione di telefoni cellulari"},
		{"N6.6", "Inversione contabile - cessione di prodotti elettronici"},
		{"N6.7", "Inversione contabile - prestazioni comparto edile e settori connessi"},
		{"N6.8", "Inversione contabile - operazioni settore energetico"},
		{"N6.9", "Inversione contabile - altri casi"},
		{"N7", "IVA assolta in altro stato UE"},
	}

	natures := make([]referencedomain.VATNature, 0, len(pairs))
	for _, pair := range pairs {
		natures = append(natures, referencedomain.VATNature{Code: pair.code, Description: pair.description})
	}
	return natures
}
