// Package notification parses the message files the exchange system
// sends back about transmitted invoices: delivery receipts, rejections,
// failed deliveries, buyer outcomes and deadline expiries.
package notification

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	transmissiondomain "github.com/smallbiznis/scambio/internal/transmission/domain"
)

var (
	ErrMalformed   = errors.New("malformed_notification")
	ErrUnknownType = errors.New("unknown_notification_type")
)

// ErrorEntry is one row of a rejection's error list.
type ErrorEntry struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion,omitempty"`
}

// Notification is the parsed view of one SDI message file. MessageID
// falls back to the notification file name when the payload carries no
// message id, so deduplication always has a key.
type Notification struct {
	Type        transmissiondomain.NotificationType
	MessageID   string
	SDIID       string
	FileName    string
	Outcome     string
	Description string
	ReceivedAt  time.Time
	Errors      []ErrorEntry
}

// rootTags maps payload root elements to notification types.
var rootTags = map[string]transmissiondomain.NotificationType{
	"RicevutaConsegna":          transmissiondomain.NotificationRC,
	"NotificaScarto":            transmissiondomain.NotificationNS,
	"NotificaMancataConsegna":   transmissiondomain.NotificationMC,
	"NotificaEsito":             transmissiondomain.NotificationNE,
	"EsitoCommittente":          transmissiondomain.NotificationEC,
	"NotificaDecorrenzaTermini": transmissiondomain.NotificationDT,
}

var timestampLayouts = []string{time.RFC3339, "2006-01-02T15:04:05"}

type Parser struct {
	log *zap.Logger
}

func NewParser(log *zap.Logger) *Parser {
	return &Parser{log: log.Named("notification.parser")}
}

// Parse reads one notification file. The type token in the file name is
// authoritative; the payload root is cross-checked and a mismatch is
// logged but does not fail the parse.
func (p *Parser) Parse(fileName string, payload []byte) (*Notification, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrMalformed)
	}

	nameType := typeFromFileName(fileName)
	contentType, contentKnown := rootTags[root.Tag]

	ntype := nameType
	if ntype == "" {
		if !contentKnown {
			return nil, fmt.Errorf("%w: %s", ErrUnknownType, fileName)
		}
		ntype = contentType
	} else if contentKnown && contentType != ntype {
		p.log.Warn("notification type mismatch, trusting file name",
			zap.String("file_name", fileName),
			zap.String("name_type", string(ntype)),
			zap.String("content_type", string(contentType)),
		)
	}

	n := &Notification{
		Type:        ntype,
		MessageID:   elementText(root, ".//MessageId"),
		SDIID:       elementText(root, ".//IdentificativoSdI"),
		FileName:    elementText(root, ".//NomeFile"),
		Outcome:     elementText(root, ".//Esito"),
		Description: elementText(root, "Descrizione"),
		ReceivedAt:  parseTimestamp(elementText(root, ".//DataOraRicezione")),
	}
	if n.MessageID == "" {
		n.MessageID = fileName
	}
	if n.FileName == "" {
		n.FileName = referencedFileName(fileName)
	}

	for _, errEl := range root.FindElements(".//Errore") {
		entry := ErrorEntry{
			Code:        elementText(errEl, "Codice"),
			Description: elementText(errEl, "Descrizione"),
			Suggestion:  elementText(errEl, "Suggerimento"),
		}
		if entry.Code != "" || entry.Description != "" {
			n.Errors = append(n.Errors, entry)
		}
	}

	return n, nil
}

// typeFromFileName scans the underscore-separated tokens of the file
// name for a notification type code and keeps the last match, which in
// the SDI naming scheme follows the referenced file's progressivo.
func typeFromFileName(fileName string) transmissiondomain.NotificationType {
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	var found transmissiondomain.NotificationType
	for _, token := range strings.Split(base, "_") {
		candidate := transmissiondomain.NotificationType(strings.ToUpper(strings.TrimSpace(token)))
		if transmissiondomain.ValidNotificationType(candidate) {
			found = candidate
		}
	}
	return found
}

// referencedFileName rebuilds the transmitted file's name from a
// notification file name, dropping the type token and what follows.
func referencedFileName(fileName string) string {
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	tokens := strings.Split(base, "_")
	typeIdx := -1
	for i, token := range tokens {
		candidate := transmissiondomain.NotificationType(strings.ToUpper(strings.TrimSpace(token)))
		if transmissiondomain.ValidNotificationType(candidate) {
			typeIdx = i
		}
	}
	if typeIdx <= 0 {
		return ""
	}
	return strings.Join(tokens[:typeIdx], "_") + ".xml"
}

func elementText(root *etree.Element, path string) string {
	if el := root.FindElement(path); el != nil {
		return strings.TrimSpace(el.Text())
	}
	return ""
}

func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}
