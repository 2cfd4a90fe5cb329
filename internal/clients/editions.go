package clients

import (
	"context"
	"net/http"
)

// EditionsClient opens document editions in the collaborating edition
// service. An edition is the out-of-band editing session a document node
// kicks off; this service owns its lifecycle, we only open it.
type EditionsClient struct {
	rc *restClient
}

func NewEditionsClient(cfg Config) *EditionsClient {
	return &EditionsClient{rc: newRESTClient(cfg)}
}

// EditionRequest is the payload for opening a document edition.
type EditionRequest struct {
	DocumentID string `json:"documentId"`
	TemplateID string `json:"templateId"`
	Status     string `json:"status"`
	FluxNodeID string `json:"fluxNodeId"`
}

// Open starts an edition for the document using the given template,
// tagging it with the flow node that requested it.
func (c *EditionsClient) Open(ctx context.Context, documentID, templateID, nodeID string) error {
	body := EditionRequest{
		DocumentID: documentID,
		TemplateID: templateID,
		Status:     "in_progress",
		FluxNodeID: nodeID,
	}
	return c.rc.doJSON(ctx, http.MethodPost, "/document-editions", body, nil)
}
