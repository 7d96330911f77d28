package main

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	awslambda "github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"

	"gemini-relay-api/internal/handlers"
	"gemini-relay-api/internal/models"
	"gemini-relay-api/pkg/lambda"
)

func internalError() events.APIGatewayProxyResponse {
	body, _ := models.EncodeJSON(models.ErrorBody{Error: "internal error"})
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusInternalServerError,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
		Body:       string(body),
	}
}

func handler(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	container, err := lambda.GetConnectionManager().GetContainer(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to initialize container")
		return internalError(), nil
	}

	req, err := lambda.FromAPIGatewayRequest(event)
	if err != nil {
		logrus.WithError(err).Warn("Failed to decode request")
		return internalError(), nil
	}

	resp, err := handlers.NewPromptHandler(container.PromptRelay).HandleRelay(ctx, req)
	if err != nil {
		logrus.WithError(err).Error("Relay handler failed")
		return internalError(), nil
	}

	return resp.ToAPIGatewayResponse(), nil
}

func main() {
	awslambda.Start(handler)
}
