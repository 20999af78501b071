package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	transmissiondomain "github.com/smallbiznis/scambio/internal/transmission/domain"
)

func newTestParser() *Parser {
	return NewParser(zap.NewNop())
}

func TestParse_DeliveryReceipt(t *testing.T) {
	payload := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<ns3:RicevutaConsegna xmlns:ns3="http://ivaservizi.agenziaentrate.gov.it/docs/xsd/fatture/messaggi/v1.0">
  <IdentificativoSdI>24680</IdentificativoSdI>
  <NomeFile>IT01234567897_00001.xml.p7m</NomeFile>
  <DataOraRicezione>2026-08-23T10:15:00+02:00</DataOraRicezione>
  <DataOraConsegna>2026-08-23T10:16:42+02:00</DataOraConsegna>
  <MessageId>100001</MessageId>
</ns3:RicevutaConsegna>`)

	n, err := newTestParser().Parse("IT01234567897_00001_RC_001.xml", payload)
	require.NoError(t, err)

	assert.Equal(t, transmissiondomain.NotificationRC, n.Type)
	assert.Equal(t, "100001", n.MessageID)
	assert.Equal(t, "24680", n.SDIID)
	assert.Equal(t, "IT01234567897_00001.xml.p7m", n.FileName)
	assert.Equal(t, time.Date(2026, 8, 23, 8, 15, 0, 0, time.UTC), n.ReceivedAt)
	assert.Empty(t, n.Errors)
}

func TestParse_RejectionErrorList(t *testing.T) {
	payload := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<ns3:NotificaScarto xmlns:ns3="http://ivaservizi.agenziaentrate.gov.it/docs/xsd/fatture/messaggi/v1.0">
  <IdentificativoSdI>24681</IdentificativoSdI>
  <NomeFile>IT01234567897_00002.xml.p7m</NomeFile>
  <DataOraRicezione>2026-08-23T11:00:00+02:00</DataOraRicezione>
  <MessageId>100002</MessageId>
  <ListaErrori>
    <Errore>
      <Codice>00200</Codice>
      <Descrizione>File non conforme al formato</Descrizione>
      <Suggerimento>Verificare il tracciato</Suggerimento>
    </Errore>
    <Errore>
      <Codice>00305</Codice>
      <Descrizione>IdFiscaleIVA del CessionarioCommittente non valido</Descrizione>
    </Errore>
  </ListaErrori>
</ns3:NotificaScarto>`)

	n, err := newTestParser().Parse("IT01234567897_00002_NS_001.xml", payload)
	require.NoError(t, err)

	assert.Equal(t, transmissiondomain.NotificationNS, n.Type)
	require.Len(t, n.Errors, 2)
	assert.Equal(t, "00200", n.Errors[0].Code)
	assert.Equal(t, "File non conforme al formato", n.Errors[0].Description)
	assert.Equal(t, "Verificare il tracciato", n.Errors[0].Suggestion)
	assert.Equal(t, "00305", n.Errors[1].Code)
	assert.Empty(t, n.Errors[1].Suggestion)
}

func TestParse_FailedDelivery(t *testing.T) {
	payload := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<ns3:NotificaMancataConsegna xmlns:ns3="http://ivaservizi.agenziaentrate.gov.it/docs/xsd/fatture/messaggi/v1.0">
  <IdentificativoSdI>24682</IdentificativoSdI>
  <NomeFile>IT01234567897_00003.xml.p7m</NomeFile>
  <DataOraRicezione>2026-08-23T12:00:00+02:00</DataOraRicezione>
  <Descrizione>Casella PEC piena</Descrizione>
  <MessageId>100003</MessageId>
</ns3:NotificaMancataConsegna>`)

	n, err := newTestParser().Parse("IT01234567897_00003_MC_001.xml", payload)
	require.NoError(t, err)

	assert.Equal(t, transmissiondomain.NotificationMC, n.Type)
	assert.Equal(t, "Casella PEC piena", n.Description)
}

func TestParse_BuyerOutcome(t *testing.T) {
	accepted := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<ns3:EsitoCommittente xmlns:ns3="http://ivaservizi.agenziaentrate.gov.it/docs/xsd/fatture/messaggi/v1.0">
  <IdentificativoSdI>24683</IdentificativoSdI>
  <NomeFile>IT01234567897_00004.xml.p7m</NomeFile>
  <Esito>EC01</Esito>
  <MessageId>100004</MessageId>
</ns3:EsitoCommittente>`)

	n, err := newTestParser().Parse("IT01234567897_00004_EC_001.xml", accepted)
	require.NoError(t, err)
	assert.Equal(t, transmissiondomain.NotificationEC, n.Type)
	assert.Equal(t, transmissiondomain.OutcomeAccepted, n.Outcome)

	refused := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<ns3:EsitoCommittente xmlns:ns3="http://ivaservizi.agenziaentrate.gov.it/docs/xsd/fatture/messaggi/v1.0">
  <IdentificativoSdI>24684</IdentificativoSdI>
  <NomeFile>IT01234567897_00005.xml.p7m</NomeFile>
  <Esito>EC02</Esito>
  <MessageId>100005</MessageId>
</ns3:EsitoCommittente>`)

	n, err = newTestParser().Parse("IT01234567897_00005_EC_001.xml", refused)
	require.NoError(t, err)
	assert.Equal(t, transmissiondomain.OutcomeRefused, n.Outcome)
}

func TestParse_DeadlineExpiry(t *testing.T) {
	payload := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<ns3:NotificaDecorrenzaTermini xmlns:ns3="http://ivaservizi.agenziaentrate.gov.it/docs/xsd/fatture/messaggi/v1.0">
  <IdentificativoSdI>24685</IdentificativoSdI>
  <NomeFile>IT01234567897_00006.xml.p7m</NomeFile>
  <Descrizione>Decorrenza termini</Descrizione>
  <MessageId>100006</MessageId>
</ns3:NotificaDecorrenzaTermini>`)

	n, err := newTestParser().Parse("IT01234567897_00006_DT_001.xml", payload)
	require.NoError(t, err)

	assert.Equal(t, transmissiondomain.NotificationDT, n.Type)
	assert.Equal(t, "Decorrenza termini", n.Description)
}

func TestParse_FileNameWinsOverContent(t *testing.T) {
	// Content says rejection, name says receipt: the name decides.
	payload := []byte(`<NotificaScarto><IdentificativoSdI>1</IdentificativoSdI></NotificaScarto>`)

	n, err := newTestParser().Parse("IT01234567897_00007_RC_001.xml", payload)
	require.NoError(t, err)
	assert.Equal(t, transmissiondomain.NotificationRC, n.Type)
}

func TestParse_ContentFallbackWhenNameHasNoToken(t *testing.T) {
	payload := []byte(`<RicevutaConsegna><IdentificativoSdI>2</IdentificativoSdI></RicevutaConsegna>`)

	n, err := newTestParser().Parse("notifica.xml", payload)
	require.NoError(t, err)
	assert.Equal(t, transmissiondomain.NotificationRC, n.Type)
}

func TestParse_UnknownType(t *testing.T) {
	payload := []byte(`<Qualcosa><IdentificativoSdI>3</IdentificativoSdI></Qualcosa>`)

	_, err := newTestParser().Parse("notifica.xml", payload)
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestParse_MalformedPayload(t *testing.T) {
	_, err := newTestParser().Parse("IT01234567897_00008_RC_001.xml", []byte("<RicevutaConsegna"))
	require.ErrorIs(t, err, ErrMalformed)

	_, err = newTestParser().Parse("IT01234567897_00008_RC_001.xml", nil)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestParse_MessageIDFallsBackToFileName(t *testing.T) {
	payload := []byte(`<RicevutaConsegna><NomeFile>IT01234567897_00009.xml</NomeFile></RicevutaConsegna>`)

	n, err := newTestParser().Parse("IT01234567897_00009_RC_001.xml", payload)
	require.NoError(t, err)
	assert.Equal(t, "IT01234567897_00009_RC_001.xml", n.MessageID)
}

func TestParse_DerivesReferencedFileName(t *testing.T) {
	payload := []byte(`<NotificaMancataConsegna><IdentificativoSdI>4</IdentificativoSdI></NotificaMancataConsegna>`)

	n, err := newTestParser().Parse("IT01234567897_00005_MC_002.xml", payload)
	require.NoError(t, err)
	assert.Equal(t, "IT01234567897_00005.xml", n.FileName)
}

func TestParse_LowercaseTypeToken(t *testing.T) {
	payload := []byte(`<RicevutaConsegna><IdentificativoSdI>5</IdentificativoSdI></RicevutaConsegna>`)

	n, err := newTestParser().Parse("it01234567897_00010_rc_001.xml", payload)
	require.NoError(t, err)
	assert.Equal(t, transmissiondomain.NotificationRC, n.Type)
}

func TestParse_NaiveTimestamp(t *testing.T) {
	payload := []byte(`<RicevutaConsegna><DataOraRicezione>2026-08-23T09:30:00</DataOraRicezione></RicevutaConsegna>`)

	n, err := newTestParser().Parse("IT01234567897_00011_RC_001.xml", payload)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 23, 9, 30, 0, 0, time.UTC), n.ReceivedAt)

	garbled := []byte(`<RicevutaConsegna><DataOraRicezione>ieri</DataOraRicezione></RicevutaConsegna>`)
	n, err = newTestParser().Parse("IT01234567897_00012_RC_001.xml", garbled)
	require.NoError(t, err)
	assert.True(t, n.ReceivedAt.IsZero())
}
