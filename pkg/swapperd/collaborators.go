package swapperd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/catalogfi/swapper/pkg/order"
	"github.com/catalogfi/swapper/pkg/swap"
)

// signerSubmitter delegates signing and broadcast to an external signer
// service, the engine never touches keys.
type signerSubmitter struct {
	client *http.Client
	url    string
}

func newSignerSubmitter(url string) *signerSubmitter {
	return &signerSubmitter{
		client: new(http.Client),
		url:    strings.TrimSuffix(url, "/"),
	}
}

type submitRequest struct {
	Action swap.Action `json:"action"`
	Order  order.Order `json:"order"`
}

type submitResponse struct {
	TxHash string `json:"txHash"`
	Error  string `json:"error,omitempty"`
}

func (submitter *signerSubmitter) Submit(ctx context.Context, action swap.Action, ord order.Order) (string, error) {
	data, err := json.Marshal(submitRequest{Action: action, Order: ord})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, submitter.url+"/submit", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := submitter.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var decoded submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("signer service rejected %v for order %v: %v", action, ord.ID, decoded.Error)
	}
	return decoded.TxHash, nil
}

// restIndexer reads chain heights from per-chain indexer endpoints
// (electrs-style `/blocks/tip/height`).
type restIndexer struct {
	client *http.Client
	urls   map[swap.Chain]string
}

func newRestIndexer(chains map[swap.Chain]ChainConfig) *restIndexer {
	urls := map[swap.Chain]string{}
	for chain, chainConfig := range chains {
		urls[chain] = strings.TrimSuffix(chainConfig.Indexer, "/")
	}
	return &restIndexer{
		client: new(http.Client),
		urls:   urls,
	}
}

func (indexer *restIndexer) CurrentHeight(ctx context.Context, chain swap.Chain) (uint64, error) {
	url, ok := indexer.urls[chain]
	if !ok {
		return 0, fmt.Errorf("no indexer configured for chain %v", chain)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/blocks/tip/height", nil)
	if err != nil {
		return 0, err
	}
	resp, err := indexer.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("indexer for %v returned %v", chain, resp.StatusCode)
	}
	var height uint64
	if _, err := fmt.Fscan(resp.Body, &height); err != nil {
		return 0, err
	}
	return height, nil
}
