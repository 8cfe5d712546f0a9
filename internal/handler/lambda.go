package handler

import (
	"github.com/aws/aws-lambda-go/lambda"
)

// StartLambda hands h to the Lambda runtime and blocks for the lifetime of
// the execution environment. onShutdown runs when the runtime sends SIGTERM.
func StartLambda(h *FirehoseHandler, onShutdown func()) {
	opts := []lambda.Option{}
	if onShutdown != nil {
		opts = append(opts, lambda.WithEnableSIGTERM(onShutdown))
	}
	lambda.StartWithOptions(h.Handle, opts...)
}
