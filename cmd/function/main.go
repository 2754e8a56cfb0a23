// Command function runs the serverless Predict function locally through the
// Functions Framework.
//
// Usage:
//
//	PORT=8080 function
//	curl -X POST localhost:8080 -d '{"features":[5.1,3.5,1.4,0.2]}'
package main

import (
	"log/slog"
	"os"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"

	_ "github.com/HatiCode/irisserve"
)

func main() {
	port := "8080"
	if envPort := os.Getenv("PORT"); envPort != "" {
		port = envPort
	}
	if os.Getenv("FUNCTION_TARGET") == "" {
		os.Setenv("FUNCTION_TARGET", "Predict")
	}

	slog.Info("starting function", "target", os.Getenv("FUNCTION_TARGET"), "port", port)
	if err := funcframework.Start(port); err != nil {
		slog.Error("funcframework.Start failed", "error", err)
		os.Exit(1)
	}
}
