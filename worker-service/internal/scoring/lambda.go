package scoring

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/yudduy/cma-analysis/internal/botscore"
)

type LambdaClient struct {
	endpoint   string
	httpClient *http.Client
}

func NewLambdaClient(endpoint string) *LambdaClient {
	return &LambdaClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (l *LambdaClient) Score(ctx context.Context, request botscore.ScoreRequest) (int, error) {
	// Lambda Runtime Interface Emulator expects invocations at this endpoint
	url := fmt.Sprintf("%s/2015-03-31/functions/function/invocations", l.endpoint)
	return postScore(ctx, l.httpClient, url, request, "lambda")
}
