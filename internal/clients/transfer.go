package clients

import (
	"context"
	"net/http"

	"github.com/rvergara/docflow/pkg/schema"
)

// TransferClient hands a document off to another flow via the flow
// transfer API.
type TransferClient struct {
	rc *restClient
}

func NewTransferClient(cfg Config) *TransferClient {
	return &TransferClient{rc: newRESTClient(cfg)}
}

// TransferRequest carries the current run state to the transfer API so it
// can seed the target flow.
type TransferRequest struct {
	CurrentDocumentID string       `json:"currentDocumentId"`
	TargetFlowID      string       `json:"targetFlowId"`
	FlowTasks         schema.Graph `json:"flowTasks"`
}

// TransferResponse reports the name of the flow the document landed in.
type TransferResponse struct {
	TargetFlowName string `json:"targetFlowName"`
}

// Transfer moves the document into the target flow and returns the target
// flow's display name.
func (c *TransferClient) Transfer(ctx context.Context, req TransferRequest) (*TransferResponse, error) {
	var resp TransferResponse
	if err := c.rc.doJSON(ctx, http.MethodPost, "/transfers", req, &resp); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeTransfer, "transfer document %s to flow %s", req.CurrentDocumentID, req.TargetFlowID).WithCause(err)
	}
	return &resp, nil
}
