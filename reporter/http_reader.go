// Reader is a testing facility to read the output of a http reporter.

package reporter

import (
	"io"
	"net/http"
)

type HttpReader struct {
	serverIP   string // listen ip
	serverPort string // listen port
}

func NewHttpReader(serverIP string, serverPort string) *HttpReader {
	return &HttpReader{
		serverIP:   serverIP,
		serverPort: serverPort,
	}
}

func (hr *HttpReader) get(route, rawQuery string) (string, error) {
	url := "http://" + hr.serverIP + ":" + hr.serverPort + route
	if rawQuery != "" {
		url += "?" + rawQuery
	}

	resp, err := http.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (hr *HttpReader) GetHealth() (string, error) {
	return hr.get(ROUTE_HEALTH, "")
}

func (hr *HttpReader) GetBatch(batchId string) (string, error) {
	return hr.get(ROUTE_BATCH, "id="+batchId)
}

func (hr *HttpReader) GetCurrentBatch(vault string) (string, error) {
	return hr.get(ROUTE_BATCH, "vault="+vault)
}

func (hr *HttpReader) GetProposal(proposalId string) (string, error) {
	return hr.get(ROUTE_PROPOSAL, "id="+proposalId)
}

func (hr *HttpReader) GetPendingProposals() (string, error) {
	return hr.get(ROUTE_PROPOSALS, "")
}

func (hr *HttpReader) GetRequest(requestId string) (string, error) {
	return hr.get(ROUTE_REQUEST, "id="+requestId)
}

func (hr *HttpReader) GetUserRequests(user string) (string, error) {
	return hr.get(ROUTE_REQUEST, "user="+user)
}

func (hr *HttpReader) GetBalances(vault, batchId string) (string, error) {
	return hr.get(ROUTE_BALANCES, "vault="+vault+"&batch_id="+batchId)
}
