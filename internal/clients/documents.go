package clients

import (
	"context"
	"net/http"
)

// DocumentStatus names the statuses the document CRUD service understands.
const (
	DocumentStatusIncluded   = "Incluido"
	DocumentStatusIntegrated = "Integrado"
	DocumentStatusInProcess  = "Em Processo"
	DocumentStatusConcluded  = "Concluido"
)

// DocumentsClient updates document records in the owning CRUD service.
type DocumentsClient struct {
	rc *restClient
}

func NewDocumentsClient(cfg Config) *DocumentsClient {
	return &DocumentsClient{rc: newRESTClient(cfg)}
}

// SetStatus moves a document to the given status.
func (c *DocumentsClient) SetStatus(ctx context.Context, documentID, status string) error {
	body := map[string]string{"status": status}
	return c.rc.doJSON(ctx, http.MethodPut, "/documents/"+documentID, body, nil)
}
