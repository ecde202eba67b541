package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/mudler/LocalResearch/core/orchestrator"
	"github.com/mudler/LocalResearch/db"
	"github.com/mudler/LocalResearch/pkg/llm"
	"github.com/mudler/LocalResearch/services/tools"
	"github.com/mudler/LocalResearch/webui"
	"github.com/mudler/xlog"
)

var baseModel = os.Getenv("LOCALRESEARCH_MODEL")
var apiURL = os.Getenv("LOCALRESEARCH_LLM_API_URL")
var apiKey = os.Getenv("LOCALRESEARCH_LLM_API_KEY")
var timeout = os.Getenv("LOCALRESEARCH_TIMEOUT")
var dbURL = os.Getenv("LOCALRESEARCH_DB_URL")
var listenAddr = os.Getenv("LOCALRESEARCH_LISTEN_ADDR")
var maxIterationsEnv = os.Getenv("LOCALRESEARCH_MAX_ITERATIONS")
var toolTimeoutEnv = os.Getenv("LOCALRESEARCH_TOOL_TIMEOUT")
var noClarify = os.Getenv("LOCALRESEARCH_DISABLE_CLARIFICATION") == "true"
var searchResultsEnv = os.Getenv("LOCALRESEARCH_SEARCH_RESULTS")

func init() {
	if baseModel == "" {
		panic("LOCALRESEARCH_MODEL not set")
	}
	if apiURL == "" {
		panic("LOCALRESEARCH_LLM_API_URL not set")
	}
	if timeout == "" {
		timeout = "5m"
	}
	if listenAddr == "" {
		listenAddr = ":3000"
	}
}

func main() {
	client := llm.NewClient(apiKey, apiURL, timeout)

	opts := []webui.Option{
		webui.WithLLMClient(client),
		webui.WithModel(baseModel),
		webui.WithTools(tools.Available(map[string]map[string]string{
			tools.SearchToolName: {"results": searchResultsEnv},
		})...),
		webui.WithClarification(!noClarify),
	}

	if maxIterationsEnv != "" {
		max, err := strconv.Atoi(maxIterationsEnv)
		if err != nil {
			panic("invalid LOCALRESEARCH_MAX_ITERATIONS: " + err.Error())
		}
		opts = append(opts, webui.WithMaxIterations(max))
	}

	if toolTimeoutEnv != "" {
		d, err := time.ParseDuration(toolTimeoutEnv)
		if err != nil {
			panic("invalid LOCALRESEARCH_TOOL_TIMEOUT: " + err.Error())
		}
		opts = append(opts, webui.WithToolTimeout(d))
	}

	var store orchestrator.Store
	if dbURL != "" {
		sessions, err := db.NewSessionStore(context.Background(), dbURL)
		if err != nil {
			panic(err)
		}
		defer sessions.Close()
		store = sessions
		opts = append(opts, webui.WithStore(store))
	} else {
		xlog.Info("No LOCALRESEARCH_DB_URL set, sessions are kept in memory only")
	}

	app, err := webui.NewApp(opts...)
	if err != nil {
		panic(err)
	}

	xlog.Info("Starting server", "addr", listenAddr, "model", baseModel)
	log.Fatal(app.Listen(listenAddr))
}
