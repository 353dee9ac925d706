// Command restapi_client_sample is the thin HTTP-facing sample client
// from spec §1: it POSTs a download_files or upload_files request to
// restapi_gateway and polls GET /restapi until the indication_id's
// progress buffer reports completion.
//
// Grounded on restapi_client_sample/restapi_client_sample.cpp's
// post-then-poll loop in original_source, adapted from httplib/
// nlohmann::json to stdlib net/http and encoding/json (the REST
// boundary's JSON adapter already lives in internal/restapi; this
// sample is a plain HTTP client of that boundary, not a collaborator
// with its own serializer choice to make).
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kcenon/file-manager/internal/config"
	"github.com/kcenon/file-manager/internal/logging"
	"github.com/kcenon/file-manager/pkg/fsutil"
)

type fileEntry struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

type requestBody struct {
	MessageType  string      `json:"message_type"`
	IndicationID string      `json:"indication_id"`
	Files        []fileEntry `json:"files"`
}

type progressMessage struct {
	MessageType  string `json:"message_type"`
	IndicationID string `json:"indication_id"`
	Percentage   uint32 `json:"percentage"`
	Completed    bool   `json:"completed"`
}

type progressBody struct {
	Messages []progressMessage `json:"messages"`
}

func main() {
	var (
		messageType  string
		sourceFolder string
		targetFolder string
		gatewayIP    string
		gatewayPort  int
		indicationID string
		logLevel     string
	)

	cmd := &cobra.Command{
		Use:   "restapi_client_sample",
		Short: "POST a transfer request to restapi_gateway and poll until it completes",
		RunE: func(cmd *cobra.Command, args []string) error {
			setIfChanged(cmd, "source-folder", "SOURCE_FOLDER", sourceFolder)
			setIfChanged(cmd, "target-folder", "TARGET_FOLDER", targetFolder)
			setIfChanged(cmd, "logging-level", "LOGGING_LEVEL", logLevel)

			cfg, err := config.LoadSampleDriver()
			if err != nil {
				return err
			}
			log := logging.New(logging.Options{
				LogFilePath:      "restapi_client_sample.log",
				Level:            cfg.LoggingLevel(),
				WriteConsole:     cfg.WriteConsole(),
				WriteConsoleOnly: cfg.WriteConsoleOnly(),
			})

			if messageType != "download_files" && messageType != "upload_files" {
				return fmt.Errorf("restapi_client_sample: --message-type must be download_files or upload_files")
			}

			entries, err := fsutil.Enumerate(cfg.SourceFolder(), cfg.TargetFolder())
			if err != nil {
				return fmt.Errorf("restapi_client_sample: enumerating %q: %w", cfg.SourceFolder(), err)
			}
			if len(entries) == 0 {
				log.Error("there is no file", "source_folder", cfg.SourceFolder())
				return nil
			}
			if indicationID == "" {
				indicationID = uuid.NewString()
			}

			body := requestBody{MessageType: messageType, IndicationID: indicationID}
			for _, e := range entries {
				body.Files = append(body.Files, fileEntry{Source: e.Source, Target: e.Target})
			}

			baseURL := fmt.Sprintf("http://%s:%d/restapi", gatewayIP, gatewayPort)
			if err := postRequest(baseURL, body); err != nil {
				return fmt.Errorf("restapi_client_sample: %w", err)
			}
			log.Info("request accepted", "indication_id", indicationID, "message_type", messageType)

			return pollUntilComplete(baseURL, indicationID, log)
		},
	}

	cmd.Flags().StringVar(&messageType, "message-type", "download_files", "download_files or upload_files")
	cmd.Flags().StringVar(&sourceFolder, "source-folder", "", "source folder")
	cmd.Flags().StringVar(&targetFolder, "target-folder", "", "target folder")
	cmd.Flags().StringVar(&gatewayIP, "gateway-ip", "127.0.0.1", "restapi_gateway address")
	cmd.Flags().IntVar(&gatewayPort, "gateway-port", 8080, "restapi_gateway HTTP port")
	cmd.Flags().StringVar(&indicationID, "indication-id", "", "indication_id to use (defaults to a fresh uuid)")
	cmd.Flags().StringVar(&logLevel, "logging-level", "", "log level (debug|info|warn|error)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setIfChanged(cmd *cobra.Command, flag, env string, value any) {
	if !cmd.Flags().Changed(flag) {
		return
	}
	os.Setenv(env, fmt.Sprintf("%v", value))
}

func postRequest(baseURL string, body requestBody) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	resp, err := http.Post(baseURL, "application/json", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("posting request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway rejected request: status %d", resp.StatusCode)
	}
	return nil
}

// pollUntilComplete mirrors restapi_client_sample.cpp's get_request
// loop: poll, drain the buffer with previous_message=clear, and stop
// once a completed message (or the historical partial-100% case)
// arrives. 204/406 responses mean the gateway hasn't buffered anything
// for this id yet and are not an error on their own.
func pollUntilComplete(baseURL, indicationID string, log *slog.Logger) error {
	deadline := time.Now().Add(2 * time.Minute)
	for time.Now().Before(deadline) {
		req, err := http.NewRequest(http.MethodGet, baseURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("indication_id", indicationID)
		req.Header.Set("previous_message", "clear")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("polling: %w", err)
		}

		switch resp.StatusCode {
		case http.StatusOK:
			var body progressBody
			err := json.NewDecoder(resp.Body).Decode(&body)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("decoding progress: %w", err)
			}
			for _, msg := range body.Messages {
				log.Info("progress", "indication_id", msg.IndicationID, "percentage", msg.Percentage)
				if msg.Completed || msg.Percentage == 100 {
					log.Info("transfer finished", "indication_id", indicationID, "completed", msg.Completed)
					return nil
				}
			}
		case http.StatusNoContent, http.StatusNotAcceptable:
			resp.Body.Close()
		default:
			resp.Body.Close()
			return fmt.Errorf("unexpected status polling progress: %d", resp.StatusCode)
		}

		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("timed out waiting for indication_id %q to complete", indicationID)
}
