package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	transmissiondomain "github.com/smallbiznis/scambio/internal/transmission/domain"
)

// HeaderSDIFileName names the notification file when the webhook body
// carries the raw XML instead of the JSON envelope.
const HeaderSDIFileName = "X-SDI-File-Name"

type ingestNotificationRequest struct {
	FileName string `json:"file_name"`
	Payload  []byte `json:"payload"`
}

// IngestSDINotification accepts one outcome file pushed by SdI. Two
// body shapes are supported: a JSON envelope with the file name and
// base64 payload, or the raw notification XML with the file name in
// X-SDI-File-Name.
func (s *Server) IngestSDINotification(c *gin.Context) {
	fileName, payload, err := readNotificationBody(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.transmissionSvc.IngestNotification(c.Request.Context(), transmissiondomain.IngestNotificationRequest{
		FileName: fileName,
		Payload:  payload,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func readNotificationBody(c *gin.Context) (string, []byte, error) {
	if isXMLContentType(c.ContentType()) {
		fileName := strings.TrimSpace(c.GetHeader(HeaderSDIFileName))
		if fileName == "" {
			return "", nil, newValidationError("file_name", "required", "X-SDI-File-Name is required for raw XML bodies")
		}
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return "", nil, invalidRequestError()
		}
		return fileName, body, nil
	}

	var req ingestNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return "", nil, invalidRequestError()
	}
	fileName := strings.TrimSpace(req.FileName)
	if fileName == "" {
		return "", nil, newValidationError("file_name", "required", "file_name is required")
	}
	return fileName, req.Payload, nil
}

func isXMLContentType(contentType string) bool {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "application/xml", "text/xml":
		return true
	default:
		return false
	}
}
