package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	log "github.com/sirupsen/logrus"

	"github.com/yudduy/cma-analysis/internal/botscore"
	"github.com/yudduy/cma-analysis/internal/logging"
)

// HandleRequest scores a hit from its user agent alone; the function keeps
// no state between invocations, so there is no velocity check.
func HandleRequest(_ context.Context, request botscore.ScoreRequest) (botscore.ScoreResponse, error) {
	score := botscore.ScoreUserAgent(request.UserAgent)
	if score >= botscore.ScoreBot {
		log.WithFields(log.Fields{
			"visitor":    request.VisitorID,
			"user_agent": request.UserAgent,
		}).Debug("automation marker in user agent")
	}
	return botscore.ScoreResponse{RiskScore: score}, nil
}

func main() {
	logging.Setup("botscore-lambda", "info", "json")
	lambda.Start(HandleRequest)
}
